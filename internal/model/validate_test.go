package model

import "testing"

func TestValidateFullNameParts(t *testing.T) {
	cases := []struct {
		name        string
		owner, repo string
		wantErr     bool
	}{
		{"valid", "octocat", "Hello-World", false},
		{"empty owner", "", "Hello-World", true},
		{"empty name", "octocat", "", true},
		{"slash in owner", "octo/cat", "Hello-World", true},
		{"slash in name", "octocat", "Hello/World", true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateFullNameParts(tc.owner, tc.repo)
			if tc.wantErr && err == nil {
				t.Fatalf("expected an error for owner=%q name=%q", tc.owner, tc.repo)
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}
