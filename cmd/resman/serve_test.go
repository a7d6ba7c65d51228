package main

import (
	"testing"

	"github.com/quayside/resman/internal/resource"
)

func TestWatchDirFor(t *testing.T) {
	cases := []struct {
		name string
		spec resource.Spec
		want string
	}{
		{"workdir wins", resource.Spec{Name: "web", Path: "mods/web", WorkDir: "/srv/web"}, "/srv/web"},
		{"falls back to path", resource.Spec{Name: "web", Path: "mods/web"}, "mods/web"},
		{"nothing to watch", resource.Spec{Name: "web"}, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := watchDirFor(tc.spec); got != tc.want {
				t.Fatalf("watchDirFor = %q, want %q", got, tc.want)
			}
		})
	}
}
