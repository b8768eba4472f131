// Command parking-token mints a bearer token signed with JWT_SHARED_TOKEN,
// for operators and local testing against the API.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/aussiebroadwan/parking/pkg/jwtx"
)

func main() {
	uid := flag.String("uid", "", "badge UID the token is issued for")
	username := flag.String("username", "", "display name")
	admin := flag.Bool("admin", false, "grant admin rights")
	ttl := flag.Duration("ttl", jwtx.DefaultTokenTTL, "token lifetime")
	flag.Parse()

	if *uid == "" {
		log.Fatal("-uid is required")
	}

	signer, err := jwtx.NewHS256([]byte(os.Getenv("JWT_SHARED_TOKEN")), 0)
	if err != nil {
		log.Fatalf("JWT_SHARED_TOKEN: %v", err)
	}

	token, err := signer.Sign(jwtx.NewClaims(*uid, *username, *admin, *ttl, time.Now()))
	if err != nil {
		log.Fatalf("sign token: %v", err)
	}
	fmt.Println(token)
}
