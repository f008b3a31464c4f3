package classify

import (
	"testing"

	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"

	"github.com/updrift/updrift/pkg/types"
)

func TestClassify(t *testing.T) {
	gomega.RegisterFailHandler(ginkgo.Fail)
	ginkgo.RunSpecs(t, "Classify Suite")
}

var _ = ginkgo.Describe("the classifier", func() {
	ginkgo.Describe("the restart check", func() {
		ginkgo.It("should be absent when the declared hash is missing", func() {
			gomega.Expect(Restart("", "abc")).To(gomega.Equal(types.VerdictAbsent))
		})
		ginkgo.It("should be absent when the computed hash is missing", func() {
			gomega.Expect(Restart("abc", "")).To(gomega.Equal(types.VerdictAbsent))
		})
		ginkgo.It("should be false when the hashes agree", func() {
			gomega.Expect(Restart("abc", "abc")).To(gomega.Equal(types.VerdictFalse))
		})
		ginkgo.It("should be true when the hashes differ", func() {
			gomega.Expect(Restart("abc", "def")).To(gomega.Equal(types.VerdictTrue))
		})
	})

	ginkgo.Describe("the pull check", func() {
		ginkgo.It("should be absent when either digest is missing", func() {
			gomega.Expect(Pull("", "abc")).To(gomega.Equal(types.VerdictAbsent))
			gomega.Expect(Pull("abc", "")).To(gomega.Equal(types.VerdictAbsent))
		})
		ginkgo.It("should be false when the digests match", func() {
			gomega.Expect(Pull("abc", "abc")).To(gomega.Equal(types.VerdictFalse))
		})
		ginkgo.It("should normalize algorithm prefixes before comparing", func() {
			gomega.Expect(Pull("sha256:abc", "abc")).To(gomega.Equal(types.VerdictFalse))
		})
		ginkgo.It("should be true when the digests differ", func() {
			gomega.Expect(Pull("abc", "def")).To(gomega.Equal(types.VerdictTrue))
		})
	})

	ginkgo.Describe("the tag check", func() {
		ginkgo.It("should be absent without a winning remote tag", func() {
			gomega.Expect(Tag("1.2.0", "", TagPolicyGreater)).To(gomega.Equal(types.VerdictAbsent))
			gomega.Expect(Tag("1.2.0", "", TagPolicyDiffer)).To(gomega.Equal(types.VerdictAbsent))
		})

		ginkgo.When("using the greater-than policy", func() {
			ginkgo.It("should report an update when the remote version is larger", func() {
				gomega.Expect(Tag("1.2.0", "1.3.0", TagPolicyGreater)).To(gomega.Equal(types.VerdictTrue))
			})
			ginkgo.It("should not report an update for equal or smaller versions", func() {
				gomega.Expect(Tag("1.3.0", "1.3.0", TagPolicyGreater)).To(gomega.Equal(types.VerdictFalse))
				gomega.Expect(Tag("1.3.0", "1.2.0", TagPolicyGreater)).To(gomega.Equal(types.VerdictFalse))
			})
			ginkgo.It("should rank a release above its prereleases", func() {
				gomega.Expect(Tag("2.0.0-rc.1", "2.0.0", TagPolicyGreater)).To(gomega.Equal(types.VerdictTrue))
				gomega.Expect(Tag("2.0.0", "2.0.0-rc.1", TagPolicyGreater)).To(gomega.Equal(types.VerdictFalse))
			})
			ginkgo.It("should degrade to lexical comparison for unparseable tags", func() {
				gomega.Expect(Tag("alpine", "bookworm", TagPolicyGreater)).To(gomega.Equal(types.VerdictTrue))
				gomega.Expect(Tag("bookworm", "alpine", TagPolicyGreater)).To(gomega.Equal(types.VerdictFalse))
			})
		})

		ginkgo.When("using the differ policy", func() {
			ginkgo.It("should report an update for any different tag", func() {
				gomega.Expect(Tag("1.3.0", "1.2.0", TagPolicyDiffer)).To(gomega.Equal(types.VerdictTrue))
			})
			ginkgo.It("should not report an update for the same tag", func() {
				gomega.Expect(Tag("1.3.0", "1.3.0", TagPolicyDiffer)).To(gomega.Equal(types.VerdictFalse))
			})
		})
	})

	ginkgo.Describe("alias suppression", func() {
		ginkgo.It("should cancel a positive verdict when the digests match", func() {
			got := SuppressAlias(types.VerdictTrue, "sha256:abc", "abc")
			gomega.Expect(got).To(gomega.Equal(types.VerdictFalse))
		})
		ginkgo.It("should keep a positive verdict when the digests differ", func() {
			got := SuppressAlias(types.VerdictTrue, "abc", "def")
			gomega.Expect(got).To(gomega.Equal(types.VerdictTrue))
		})
		ginkgo.It("should pass non-positive verdicts through", func() {
			gomega.Expect(SuppressAlias(types.VerdictFalse, "abc", "abc")).To(gomega.Equal(types.VerdictFalse))
			gomega.Expect(SuppressAlias(types.VerdictAbsent, "abc", "abc")).To(gomega.Equal(types.VerdictAbsent))
		})
		ginkgo.It("should not suppress when a digest is missing", func() {
			gomega.Expect(SuppressAlias(types.VerdictTrue, "", "abc")).To(gomega.Equal(types.VerdictTrue))
		})
	})
})
