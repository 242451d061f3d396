package report

import (
	"errors"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("LocalStorage", func() {
	var (
		tmpDir  string
		storage *LocalStorage
	)

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
		var err error
		storage, err = NewLocalStorage(filepath.Join(tmpDir, "files"))
		Expect(err).NotTo(HaveOccurred())
	})

	It("creates the base directory", func() {
		info, err := os.Stat(filepath.Join(tmpDir, "files"))
		Expect(err).NotTo(HaveOccurred())
		Expect(info.IsDir()).To(BeTrue())
	})

	Describe("Save", func() {
		It("writes into subdirectories", func() {
			path, err := storage.Save("anexos/1_1_nf.jpg", []byte("data"))
			Expect(err).NotTo(HaveOccurred())
			Expect(path).To(Equal("anexos/1_1_nf.jpg"))

			data, err := os.ReadFile(filepath.Join(tmpDir, "files", "anexos", "1_1_nf.jpg"))
			Expect(err).NotTo(HaveOccurred())
			Expect(data).To(Equal([]byte("data")))
		})

		DescribeTable("rejects paths outside the base directory",
			func(path string) {
				_, err := storage.Save(path, []byte("x"))
				Expect(errors.Is(err, ErrUnsafePath)).To(BeTrue())
			},
			Entry("parent", "../escape.txt"),
			Entry("nested parent", "anexos/../../escape.txt"),
			Entry("absolute", "/etc/passwd"),
			Entry("backslash", `anexos\..\escape.txt`),
			Entry("empty", ""),
			Entry("empty segment", "anexos//x.txt"),
		)
	})

	Describe("Get", func() {
		It("reads a saved file", func() {
			_, err := storage.Save("relatorios/a.pdf", []byte("pdf"))
			Expect(err).NotTo(HaveOccurred())
			data, err := storage.Get("relatorios/a.pdf")
			Expect(err).NotTo(HaveOccurred())
			Expect(data).To(Equal([]byte("pdf")))
		})

		It("fails for a missing file", func() {
			_, err := storage.Get("relatorios/missing.pdf")
			Expect(err).To(HaveOccurred())
		})

		It("refuses to read outside the base directory", func() {
			_, err := storage.Get("../outside")
			Expect(errors.Is(err, ErrUnsafePath)).To(BeTrue())
		})
	})

	Describe("Delete", func() {
		It("removes a file", func() {
			_, err := storage.Save("anexos/x.jpg", []byte("x"))
			Expect(err).NotTo(HaveOccurred())
			Expect(storage.Delete("anexos/x.jpg")).To(Succeed())
			_, err = storage.Get("anexos/x.jpg")
			Expect(err).To(HaveOccurred())
		})

		It("fails for a missing file", func() {
			Expect(storage.Delete("anexos/none.jpg")).NotTo(Succeed())
		})
	})
})
