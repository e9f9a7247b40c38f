package handlers

import "testing"

func TestParseRepositoryFromText(t *testing.T) {
	defaults := Defaults{Owner: "acme", Repo: "widgets"}
	tests := []struct {
		name     string
		text     string
		defaults Defaults
		want     RepoRef
	}{
		{
			name:     "explicit",
			text:     "DKG-Technology-LLC/the-rail some command",
			defaults: defaults,
			want:     RepoRef{Owner: "DKG-Technology-LLC", Repo: "the-rail", Remaining: "some command", Explicit: true},
		},
		{
			name:     "explicit without rest",
			text:     "acme/gadgets",
			defaults: defaults,
			want:     RepoRef{Owner: "acme", Repo: "gadgets", Explicit: true},
		},
		{
			name:     "explicit trims rest",
			text:     "  acme/gadgets    add   caching  ",
			defaults: defaults,
			want:     RepoRef{Owner: "acme", Repo: "gadgets", Remaining: "add   caching", Explicit: true},
		},
		{
			name:     "defaults",
			text:     "add a login page",
			defaults: defaults,
			want:     RepoRef{Owner: "acme", Repo: "widgets", Remaining: "add a login page"},
		},
		{
			name:     "default repo carries owner",
			text:     "fix the build",
			defaults: Defaults{Repo: "owner/project/subproject"},
			want:     RepoRef{Owner: "owner", Repo: "project/subproject", Remaining: "fix the build"},
		},
		{
			name:     "path in sentence is not a repository",
			text:     "look at src/main.go please",
			defaults: defaults,
			want:     RepoRef{Owner: "acme", Repo: "widgets", Remaining: "look at src/main.go please"},
		},
		{
			name:     "empty",
			text:     "",
			defaults: defaults,
			want:     RepoRef{Owner: "acme", Repo: "widgets"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseRepositoryFromText(tt.text, tt.defaults)
			if got != tt.want {
				t.Errorf("ParseRepositoryFromText(%q) = %+v, want %+v", tt.text, got, tt.want)
			}
		})
	}
}

func TestRepoRefValid(t *testing.T) {
	tests := []struct {
		ref  RepoRef
		want bool
	}{
		{RepoRef{Owner: "DKG-Technology-LLC", Repo: "the-rail"}, true},
		{RepoRef{Owner: "-owner", Repo: "repo"}, false},
		{RepoRef{Owner: "owner-", Repo: "repo"}, false},
		{RepoRef{Owner: "owner..name", Repo: "repo"}, false},
		{RepoRef{Owner: "owner", Repo: ""}, false},
		{RepoRef{Owner: "owner", Repo: "project/subproject"}, false},
	}
	for _, tt := range tests {
		if got := tt.ref.Valid(); got != tt.want {
			t.Errorf("%+v.Valid() = %v, want %v", tt.ref, got, tt.want)
		}
	}
}
