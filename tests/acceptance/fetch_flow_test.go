package acceptance_test

import (
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/edgecomet/fetchmd/internal/cache"
	"github.com/edgecomet/fetchmd/internal/fetch/pipeline"
	"github.com/edgecomet/fetchmd/internal/fetcherr"
	"github.com/edgecomet/fetchmd/internal/reply"
)

var _ = Describe("Fetching documents", Serial, func() {
	Context("when fetching a static HTML page", func() {
		It("converts the page to markdown with title and metadata", func() {
			By("Fetching the article")
			result, err := testEnv.Fetch("https://docs.test/articles/go-concurrency.html")
			Expect(err).NotTo(HaveOccurred())

			By("Verifying the artifact")
			Expect(result.Artifact.Title).To(Equal("Go Concurrency Patterns"))
			Expect(result.Artifact.Metadata).To(HaveKeyWithValue("description", "Channels, goroutines and pipelines."))
			Expect(result.Artifact.Markdown).To(ContainSubstring("Share memory by communicating."))

			By("Verifying noise elements were stripped")
			Expect(result.Artifact.Markdown).NotTo(ContainSubstring("Copyright banner text"))

			By("Verifying relative links were resolved against the page host")
			Expect(result.Artifact.Markdown).To(ContainSubstring("https://docs.test/articles/pipelines.html"))

			By("Verifying the result bookkeeping")
			Expect(result.FromCache).To(BeFalse())
			Expect(result.URL).To(Equal("https://docs.test/articles/go-concurrency.html"))
			Expect(result.ContentSize).To(Equal(len(result.Artifact.Markdown)))
		})

		It("serves the second fetch from cache", func() {
			first, err := testEnv.Fetch("https://docs.test/articles/go-concurrency.html")
			Expect(err).NotTo(HaveOccurred())
			Expect(first.FromCache).To(BeFalse())

			second, err := testEnv.Fetch("https://docs.test/articles/go-concurrency.html")
			Expect(err).NotTo(HaveOccurred())
			Expect(second.FromCache).To(BeTrue())
			Expect(second.Artifact.Markdown).To(Equal(first.Artifact.Markdown))
		})

		It("rebuilds when force refresh is requested", func() {
			_, err := testEnv.Fetch("https://docs.test/articles/go-concurrency.html")
			Expect(err).NotTo(HaveOccurred())

			refreshed, err := testEnv.FetchWith(pipeline.Request{
				URL:          "https://docs.test/articles/go-concurrency.html",
				ForceRefresh: true,
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(refreshed.FromCache).To(BeFalse())
		})

		It("keeps noise-preserving fetches in a separate cache slot", func() {
			stripped, err := testEnv.Fetch("https://docs.test/articles/go-concurrency.html")
			Expect(err).NotTo(HaveOccurred())

			preserved, err := testEnv.FetchWith(pipeline.Request{
				URL:              "https://docs.test/articles/go-concurrency.html",
				SkipNoiseRemoval: true,
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(preserved.FromCache).To(BeFalse(), "variation must not reuse the stripped artifact")
			Expect(preserved.Artifact.Markdown).To(ContainSubstring("Copyright banner text"))
			Expect(stripped.Artifact.Markdown).NotTo(ContainSubstring("Copyright banner text"))
		})
	})

	Context("when the origin redirects", func() {
		It("records the post-redirect URL and caches under both fingerprints", func() {
			By("Fetching through the redirect")
			result, err := testEnv.Fetch("https://docs.test/moved")
			Expect(err).NotTo(HaveOccurred())
			Expect(result.FinalURL).To(Equal("https://docs.test/articles/go-concurrency.html"))
			Expect(result.Artifact.Title).To(Equal("Go Concurrency Patterns"))

			By("Fetching the final URL directly")
			direct, err := testEnv.Fetch("https://docs.test/articles/go-concurrency.html")
			Expect(err).NotTo(HaveOccurred())
			Expect(direct.FromCache).To(BeTrue(), "redirect target should already be cached")
		})
	})

	Context("when the content is not HTML", func() {
		It("passes markdown through unconverted", func() {
			result, err := testEnv.Fetch("https://docs.test/owner/repo/main/README.md")
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Artifact.Markdown).To(ContainSubstring("# Fetchmd"))
			Expect(result.Artifact.Markdown).To(ContainSubstring("Raw readme served without blob chrome."))
		})

		It("passes plain text through unconverted", func() {
			result, err := testEnv.Fetch("https://docs.test/plain.txt")
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Artifact.Markdown).To(Equal("plain text, no markup"))
		})
	})

	Context("when the page is served gzip-encoded", func() {
		It("decodes the body before conversion", func() {
			result, err := testEnv.Fetch("https://docs.test/gzipped")
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Artifact.Title).To(Equal("Go Concurrency Patterns"))
			Expect(result.Artifact.Markdown).To(ContainSubstring("Share memory by communicating."))
		})
	})

	Context("when the URL points at a source-hosting view page", func() {
		It("rewrites a GitHub blob URL to its raw counterpart before fetching", func() {
			result, err := testEnv.Fetch("https://github.com/owner/repo/blob/main/README.md")
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Rewritten).To(BeTrue())
			Expect(result.Platform).To(Equal("github"))
			Expect(result.ResolvedURL).To(Equal("https://raw.githubusercontent.com/owner/repo/main/README.md"))
			Expect(result.Artifact.Markdown).To(ContainSubstring("# Fetchmd"))
		})
	})

	Context("when the origin fails", func() {
		It("surfaces a 404 without retrying", func() {
			_, err := testEnv.Fetch("https://docs.test/nowhere")
			Expect(err).To(HaveOccurred())

			fe := fetcherr.From(err)
			Expect(fe.Kind).To(Equal(fetcherr.KindHTTP))
			Expect(fe.StatusCode).To(Equal(404))
		})

		It("retries server errors and succeeds within the attempt budget", func() {
			result, err := testEnv.Fetch("https://docs.test/flaky")
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Artifact.Title).To(Equal("Recovered"))
			Expect(testEnv.flakyCalls.Load()).To(Equal(int32(3)))
		})
	})

	Context("when the URL fails admission", func() {
		It("rejects a loopback literal before any network activity", func() {
			_, err := testEnv.Fetch("http://127.0.0.1/latest/meta-data/")
			Expect(err).To(HaveOccurred())

			fe := fetcherr.From(err)
			Expect(fe.Kind).To(Equal(fetcherr.KindValidation))
			Expect(fe.Message).To(ContainSubstring("Blocked IP range"))
		})

		It("rejects an unsupported scheme", func() {
			_, err := testEnv.Fetch("ftp://docs.test/file")
			fe := fetcherr.From(err)
			Expect(fe.Kind).To(Equal(fetcherr.KindValidation))
			Expect(fe.Message).To(ContainSubstring("Unsupported protocol"))
		})
	})

	Context("when shaping the reply", func() {
		It("truncates inline markdown to the per-call limit and links the cached artifact", func() {
			result, err := testEnv.Fetch("https://docs.test/articles/go-concurrency.html")
			Expect(err).NotTo(HaveOccurred())

			shaped := testEnv.Shaper.Shape(result, 40)
			Expect(shaped.Truncated).To(BeTrue())
			Expect(len(shaped.Markdown)).To(BeNumerically("<=", 40))
			Expect(shaped.Markdown).To(HaveSuffix(reply.Marker))
			Expect(shaped.ContentSize).To(Equal(len(result.Artifact.Markdown)))
			Expect(shaped.CacheResourceURI).To(HavePrefix("/mcp/downloads/" + cache.NamespaceMarkdown + "/"))
		})

		It("keeps short content inline without truncation", func() {
			result, err := testEnv.Fetch("https://docs.test/plain.txt")
			Expect(err).NotTo(HaveOccurred())

			shaped := testEnv.Shaper.Shape(result, 0)
			Expect(shaped.Truncated).To(BeFalse())
			Expect(strings.TrimSpace(shaped.Markdown)).To(Equal("plain text, no markup"))
		})
	})
})
