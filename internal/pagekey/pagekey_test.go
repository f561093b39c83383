package pagekey

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name        string
		raw         string
		ignoreQuery bool
		want        string
	}{
		{name: "absolute url", raw: "https://example.com/blog/post", ignoreQuery: true, want: "/blog/post"},
		{name: "query ignored", raw: "https://example.com/a?x=1", ignoreQuery: true, want: "/a"},
		{name: "query kept", raw: "https://example.com/a?x=1", ignoreQuery: false, want: "/a?x=1"},
		{name: "no query kept", raw: "https://example.com/a", ignoreQuery: false, want: "/a"},
		{name: "fragment dropped", raw: "/a?x=1#top", ignoreQuery: false, want: "/a?x=1"},
		{name: "bare host", raw: "https://example.com", ignoreQuery: true, want: "/"},
		{name: "relative path", raw: "/docs", ignoreQuery: true, want: "/docs"},
		{name: "empty", raw: "", ignoreQuery: true, want: "/"},
		{name: "unparseable", raw: "http://[::1", ignoreQuery: false, want: "/"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, Resolve(tc.raw, tc.ignoreQuery))
		})
	}
}

func TestResolveQueryPolicy(t *testing.T) {
	t.Parallel()

	a := "https://example.com/page?utm=1"
	b := "https://example.com/page?utm=2"
	require.Equal(t, Resolve(a, true), Resolve(b, true))
	require.NotEqual(t, Resolve(a, false), Resolve(b, false))
}
