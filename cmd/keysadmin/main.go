// Command keysadmin seeds and inspects the key accounting tables directly,
// without going through the HTTP API.
package main

import (
	"context"
	"log"
	"os"
)

func main() {
	log.SetFlags(0)

	a := &app{}
	err := newRootCmd(a).ExecuteContext(context.Background())
	a.close()
	if err != nil {
		os.Exit(1)
	}
}
