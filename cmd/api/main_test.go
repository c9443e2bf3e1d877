package main

import (
	"testing"

	"github.com/Abdullah97825/Matjary-sub000/internal/platform/config"
)

func TestRequiredSecretNames(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
		want []string
	}{
		{"defaults", map[string]string{}, nil},
		{"mysql", map[string]string{"API_STORAGE_BACKEND": "MySQL"}, []string{"MySQL.DSN"}},
		{"devtoken", map[string]string{"API_AUTH_MODE": "devtoken"}, []string{"Auth.DevTokenSecret"}},
		{"both", map[string]string{"API_STORAGE_BACKEND": "mysql", "API_AUTH_MODE": "devtoken"}, []string{"MySQL.DSN", "Auth.DevTokenSecret"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := requiredSecretNames(tc.env)
			if len(got) != len(tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
			for i := range got {
				if got[i] != tc.want[i] {
					t.Fatalf("expected %v, got %v", tc.want, got)
				}
			}
		})
	}
}

func TestBuildInfoFromEnvDefaults(t *testing.T) {
	info := buildInfoFromEnv(map[string]string{})
	if info.Version != "dev" || info.CommitSHA != "unknown" {
		t.Fatalf("unexpected defaults %#v", info)
	}
	info = buildInfoFromEnv(map[string]string{"API_BUILD_VERSION": " 1.4.0 ", "API_BUILD_COMMIT_SHA": "abc"})
	if info.Version != "1.4.0" || info.CommitSHA != "abc" {
		t.Fatalf("unexpected build info %#v", info)
	}
}

func TestTraceProjectIDPrefersFirebase(t *testing.T) {
	cfg := config.Config{
		Firebase:  config.FirebaseConfig{ProjectID: "fb-project"},
		Firestore: config.FirestoreConfig{ProjectID: "fs-project"},
	}
	if got := traceProjectID(cfg); got != "fb-project" {
		t.Fatalf("expected firebase project, got %q", got)
	}
	cfg.Firebase.ProjectID = " "
	if got := traceProjectID(cfg); got != "fs-project" {
		t.Fatalf("expected firestore project, got %q", got)
	}
}
