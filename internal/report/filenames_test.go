package report

import (
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("sanitizeFilename", func() {
	DescribeTable("cleans names",
		func(input, expected string) {
			Expect(sanitizeFilename(input)).To(Equal(expected))
		},
		Entry("plain", "nota.pdf", "nota.pdf"),
		Entry("spaces", "cupom fiscal.jpg", "cupom_fiscal.jpg"),
		Entry("shell characters", `a|b&c;d$e%f@g"h<i>j(k)l+m,n.png`, "a_b_c_d_e_f_g_h_i_j_k_l_m_n.png"),
		Entry("separators", "../../etc/passwd", "etc_passwd"),
		Entry("upper-case extension", "FOTO.JPG", "FOTO.jpg"),
		Entry("accents are kept", "recibo café.heic", "recibo_café.heic"),
		Entry("empty", "", "arquivo"),
		Entry("only dots", "..", "arquivo"),
	)

	It("truncates long phone-camera names", func() {
		name := sanitizeFilename(strings.Repeat("x", 200) + ".jpg")
		Expect(name).To(HaveLen(maxFilenameBase + len(".jpg")))
	})
})

var _ = Describe("fileLabel", func() {
	It("replaces spaces", func() {
		Expect(fileLabel("Loja Centro")).To(Equal("Loja_Centro"))
	})

	It("has a placeholder for empty labels", func() {
		Expect(fileLabel("  ")).To(Equal("SEM_NOME"))
	})
})
