package chiadapter_test

import (
	"github.com/ratewatch/ratewatch/auth"
	"github.com/ratewatch/ratewatch/contract/chiadapter"
	"github.com/ratewatch/ratewatch/health"
	"github.com/ratewatch/ratewatch/kv"
	"github.com/ratewatch/ratewatch/privacy"
	"github.com/ratewatch/ratewatch/ratelimit"
)

func ExampleNewRouter() {
	store := kv.NewMemory()
	defer store.Close()

	secret := []byte("service-signing-key")
	credential := "a-credential-that-is-long-enough-32b"

	_ = chiadapter.NewRouter(chiadapter.Deps{
		Engine:           ratelimit.New(store),
		Verifier:         auth.NewVerifier(secret),
		PrivacyManager:   privacy.NewManager(store),
		Prober:           health.NewProber(store),
		CredentialDigest: auth.Digest(secret, credential),
	})
}
