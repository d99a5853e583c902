// Command hashkey generates a new API credential secret and prints
// both the secret (shown once) and its Argon2id hash (the value
// stored in the api_keys.secret_hash column), the way an operator
// provisions a credential out-of-band from the ingest service itself.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/fatih/color"

	"go.healthexport.dev/ingest/internal/auth"
)

func main() {
	verify := flag.String("verify", "", "verify a secret against an existing hash instead of generating one (reads the hash from -hash)")
	hash := flag.String("hash", "", "the stored hash to verify -verify against")
	flag.Parse()

	if *verify != "" {
		if *hash == "" {
			color.Red("error: -hash is required with -verify")
			os.Exit(1)
		}
		if auth.VerifyToken(*verify, *hash) {
			color.Green("match")
			return
		}
		color.Red("no match")
		os.Exit(1)
	}

	secret, err := auth.GenerateToken()
	if err != nil {
		color.Red("error: %s", err)
		os.Exit(1)
	}

	encoded, err := auth.HashToken(secret)
	if err != nil {
		color.Red("error: %s", err)
		os.Exit(1)
	}

	color.Yellow("secret (shown once, give this to the client):")
	fmt.Println(secret)
	fmt.Println()
	color.Cyan("hash (store this in api_keys.secret_hash):")
	fmt.Println(encoded)
}
