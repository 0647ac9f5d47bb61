// authzd is the multi-tenant authorization decision service. It answers
// "may this principal perform this action on this resource" over HTTP,
// combining role assignments in Postgres with an external policy engine,
// fronted by a two-tier decision cache.
package main

import (
	"fmt"
	"os"

	"github.com/bl-hori/auth-platform-sub003/cmd/authzd/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
