package safeurl

import (
	"net/url"
	"regexp"
	"strings"
)

// RewriteResult reports whether a view URL was rewritten to its
// raw-content counterpart.
type RewriteResult struct {
	URL         string
	Transformed bool
	Platform    string // github | gist | gitlab | bitbucket, empty if untouched
}

var (
	githubBlobRe   = regexp.MustCompile(`^/([^/]+)/([^/]+)/blob/(.+)$`)
	gistPathRe     = regexp.MustCompile(`^/([^/]+)/([0-9a-fA-F]+)(/raw(/.*)?)?/?$`)
	gitlabBlobRe   = regexp.MustCompile(`^(.*)/-/blob/(.+)$`)
	bitbucketSrcRe = regexp.MustCompile(`^/([^/]+)/([^/]+)/src/(.+)$`)
	gistExtRe      = regexp.MustCompile(`-([0-9a-zA-Z]{1,8})$`)
)

// RewriteRawURL applies the ordered rewrite rules (GitHub blob, GitHub
// gist, GitLab blob, Bitbucket src), first match wins. URLs already
// pointing at raw content are returned unchanged with Transformed=false.
// Scheme, query and fragment are preserved except where a rule explicitly
// consumes them (the gist #file-… fragment).
func RewriteRawURL(rawURL string) RewriteResult {
	unchanged := RewriteResult{URL: rawURL}

	u, err := url.Parse(rawURL)
	if err != nil {
		return unchanged
	}
	host := strings.ToLower(u.Hostname())

	switch {
	case host == "raw.githubusercontent.com" || host == "gist.githubusercontent.com":
		return unchanged
	case host == "github.com":
		return rewriteGitHubBlob(u, unchanged)
	case host == "gist.github.com":
		return rewriteGist(u, unchanged)
	case host == "gitlab.com" || strings.HasSuffix(host, ".gitlab.com"):
		return rewriteGitLabBlob(u, unchanged)
	case host == "bitbucket.org":
		return rewriteBitbucketSrc(u, unchanged)
	default:
		return unchanged
	}
}

func rewriteGitHubBlob(u *url.URL, unchanged RewriteResult) RewriteResult {
	m := githubBlobRe.FindStringSubmatch(u.Path)
	if m == nil {
		return unchanged
	}
	out := *u
	out.Host = "raw.githubusercontent.com"
	out.Path = "/" + m[1] + "/" + m[2] + "/" + m[3]
	return RewriteResult{URL: out.String(), Transformed: true, Platform: "github"}
}

func rewriteGist(u *url.URL, unchanged RewriteResult) RewriteResult {
	m := gistPathRe.FindStringSubmatch(u.Path)
	if m == nil {
		return unchanged
	}
	user, id := m[1], m[2]

	path := "/" + user + "/" + id + "/raw"
	if m[4] != "" && m[4] != "/" {
		// The view URL already names a file under /raw/.
		path += m[4]
	} else if slug, ok := strings.CutPrefix(u.Fragment, "file-"); ok && slug != "" {
		// GitHub slugs file names by replacing dots with hyphens; restore
		// the extension dot when the suffix looks like one.
		path += "/" + unslugGistFile(slug)
	}

	out := *u
	out.Host = "gist.githubusercontent.com"
	out.Path = path
	out.Fragment = "" // consumed by the rule
	return RewriteResult{URL: out.String(), Transformed: true, Platform: "gist"}
}

// unslugGistFile converts a gist anchor slug back to a file name: the final
// hyphen-separated token becomes the extension ("example-md" → "example.md").
func unslugGistFile(slug string) string {
	if m := gistExtRe.FindStringSubmatchIndex(slug); m != nil && m[0] > 0 {
		return slug[:m[0]] + "." + slug[m[2]:m[3]]
	}
	return slug
}

func rewriteGitLabBlob(u *url.URL, unchanged RewriteResult) RewriteResult {
	if strings.Contains(u.Path, "/-/raw/") {
		return unchanged
	}
	m := gitlabBlobRe.FindStringSubmatch(u.Path)
	if m == nil {
		return unchanged
	}
	out := *u
	out.Path = m[1] + "/-/raw/" + m[2]
	return RewriteResult{URL: out.String(), Transformed: true, Platform: "gitlab"}
}

func rewriteBitbucketSrc(u *url.URL, unchanged RewriteResult) RewriteResult {
	if strings.Contains(u.Path, "/raw/") {
		return unchanged
	}
	m := bitbucketSrcRe.FindStringSubmatch(u.Path)
	if m == nil {
		return unchanged
	}
	out := *u
	out.Path = "/" + m[1] + "/" + m[2] + "/raw/" + m[3]
	return RewriteResult{URL: out.String(), Transformed: true, Platform: "bitbucket"}
}
