package report

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
	"golang.org/x/crypto/bcrypt"

	"github.com/zombor/petty-cash/internal/ledger"
	"github.com/zombor/petty-cash/internal/scanning"
)

// reportForm builds the multipart body the report form sends
func reportForm(report ledger.Draft, uploads []Upload) (*bytes.Buffer, string) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	data, err := json.Marshal(report)
	Expect(err).NotTo(HaveOccurred())
	Expect(writer.WriteField("report", string(data))).To(Succeed())

	for _, u := range uploads {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="item-`+strconv.Itoa(u.ItemID)+`"; filename="`+u.Name+`"`)
		if u.ContentType != "" {
			h.Set("Content-Type", u.ContentType)
		}
		part, err := writer.CreatePart(h)
		Expect(err).NotTo(HaveOccurred())
		_, err = part.Write(u.Data)
		Expect(err).NotTo(HaveOccurred())
	}
	Expect(writer.Close()).To(Succeed())
	return body, writer.FormDataContentType()
}

func decodeBody(resp *http.Response, v interface{}) {
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	Expect(err).NotTo(HaveOccurred())
	Expect(json.Unmarshal(body, v)).To(Succeed())
}

var _ = Describe("Server", func() {
	var (
		db          *mockDB
		storage     *mockStorage
		scanner     scanning.Scanner
		auth        *Authenticator
		server      *Server
		ghttpServer *ghttp.Server
	)

	// send routes a single request through the server
	send := func(method, path string, body io.Reader, header http.Header) *http.Response {
		ghttpServer.AppendHandlers(server.ServeHTTP)
		req, err := http.NewRequest(method, ghttpServer.URL()+path, body)
		Expect(err).NotTo(HaveOccurred())
		for k, v := range header {
			req.Header[k] = v
		}
		resp, err := http.DefaultClient.Do(req)
		Expect(err).NotTo(HaveOccurred())
		return resp
	}

	sendJSON := func(method, path string, v interface{}) *http.Response {
		data, err := json.Marshal(v)
		Expect(err).NotTo(HaveOccurred())
		return send(method, path, bytes.NewReader(data), http.Header{"Content-Type": {"application/json"}})
	}

	bearer := func() http.Header {
		token, _, err := auth.Login("admin", "s3cret")
		Expect(err).NotTo(HaveOccurred())
		return http.Header{"Authorization": {"Bearer " + token}}
	}

	BeforeEach(func() {
		db = newMockDB()
		storage = newMockStorage()
		scanner = nil
	})

	JustBeforeEach(func() {
		clock := &mockTimeSource{now: fixedNow}
		service := NewServiceWithDeps(db, scanner, storage, &mockIDGenerator{}, clock)
		var err error
		auth, err = NewAuthenticatorWithDeps(db, testSecret, clock, bcrypt.MinCost)
		Expect(err).NotTo(HaveOccurred())
		Expect(auth.EnsureAdmin("admin", "s3cret")).To(Succeed())
		server = NewServerWithMux(service, auth, http.NewServeMux())
		ghttpServer = ghttp.NewServer()
	})

	AfterEach(func() {
		if ghttpServer != nil {
			ghttpServer.Close()
		}
	})

	Describe("pages", func() {
		It("serves the report form", func() {
			resp := send("GET", "/", nil, nil)
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(ContainSubstring("text/html"))
			body, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(body)).To(ContainSubstring("Prestação de Contas"))
		})

		It("serves the dashboard", func() {
			resp := send("GET", "/dashboard", nil, nil)
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
		})

		It("serves static assets", func() {
			resp := send("GET", "/static/app.js", nil, nil)
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
		})

		It("rejects other methods", func() {
			resp := send("POST", "/", nil, nil)
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusMethodNotAllowed))
		})

		It("answers CORS preflight requests", func() {
			resp := send("OPTIONS", "/api/reports", nil, nil)
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			Expect(resp.Header.Get("Access-Control-Allow-Origin")).To(Equal("*"))
		})
	})

	Describe("POST /api/pix/validate", func() {
		It("classifies a CPF", func() {
			resp := sendJSON("POST", "/api/pix/validate", map[string]string{"key": "11144477735"})
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var result map[string]interface{}
			decodeBody(resp, &result)
			Expect(result["kind"]).To(Equal("cpf"))
			Expect(result["valid"]).To(BeTrue())
			Expect(result["formatted"]).To(Equal("111.444.777-35"))
		})

		It("explains an invalid key", func() {
			resp := sendJSON("POST", "/api/pix/validate", map[string]string{"key": "user@@bad"})
			var result map[string]interface{}
			decodeBody(resp, &result)
			Expect(result["valid"]).To(BeFalse())
			Expect(result["reason"]).NotTo(BeEmpty())
		})

		It("rejects a malformed body", func() {
			resp := send("POST", "/api/pix/validate", strings.NewReader("{"), nil)
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("rejects an oversized body", func() {
			body := `{"key":"` + strings.Repeat("a", int(maxJSONSize)) + `"}`
			resp := send("POST", "/api/pix/validate", strings.NewReader(body), nil)
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusRequestEntityTooLarge))
		})
	})

	Describe("POST /api/ledger/totals", func() {
		It("computes the totals", func() {
			resp := sendJSON("POST", "/api/ledger/totals", map[string]interface{}{
				"disbursed_fund": 300,
				"items":          []map[string]interface{}{{"id": 1, "amount": 50}, {"id": 3, "amount": "25,50"}},
			})
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var result map[string]float64
			decodeBody(resp, &result)
			Expect(result["consumed"]).To(Equal(75.5))
			Expect(result["balance"]).To(Equal(224.5))
			Expect(result["usage_percent"]).To(Equal(25.0))
			Expect(result["next_item_id"]).To(Equal(4.0))
		})

		It("drops the sign of negative amounts", func() {
			resp := sendJSON("POST", "/api/ledger/totals", map[string]interface{}{
				"disbursed_fund": 100,
				"items":          []map[string]interface{}{{"id": 1, "amount": -30}, {"id": 2, "amount": "-20,00"}},
			})
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var result map[string]float64
			decodeBody(resp, &result)
			Expect(result["consumed"]).To(Equal(50.0))
			Expect(result["balance"]).To(Equal(50.0))
		})

		It("treats out of range amounts as zero", func() {
			body := `{"disbursed_fund":1e300000000,"items":[{"id":1,"amount":1e20},{"id":2,"amount":1e-300000000}]}`
			resp := send("POST", "/api/ledger/totals", strings.NewReader(body), http.Header{"Content-Type": {"application/json"}})
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var result map[string]float64
			decodeBody(resp, &result)
			Expect(result["consumed"]).To(BeZero())
			Expect(result["balance"]).To(BeZero())
			Expect(result["usage_percent"]).To(BeZero())
		})
	})

	Describe("POST /api/ledger/validate", func() {
		It("lists the problems", func() {
			report := validReport()
			report.Header.DisbursedFund = 0
			resp := sendJSON("POST", "/api/ledger/validate", report)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var result struct {
				OK       bool             `json:"ok"`
				Problems []ledger.Problem `json:"problems"`
			}
			decodeBody(resp, &result)
			Expect(result.OK).To(BeFalse())
			kinds := []ledger.ProblemKind{}
			for _, p := range result.Problems {
				kinds = append(kinds, p.Kind)
			}
			Expect(kinds).To(ConsistOf(ledger.NonPositiveFund, ledger.MissingAttachment))
		})
	})

	Describe("POST /api/reports", func() {
		It("stores a complete report", func() {
			body, contentType := reportForm(validReport(), validUploads())
			resp := send("POST", "/api/reports", body, http.Header{"Content-Type": {contentType}})
			Expect(resp.StatusCode).To(Equal(http.StatusCreated))

			var record Record
			decodeBody(resp, &record)
			Expect(record.ID).To(Equal("id-1"))
			Expect(record.Totals.Consumed).To(Equal(ledger.Money(7550)))
			Expect(db.records).To(HaveKey("id-1"))
			Expect(record.Items[1].Attachments[0].ContentType).To(Equal("image/jpeg"))
		})

		It("guesses the content type from the extension", func() {
			uploads := validUploads()
			uploads[1].ContentType = ""
			body, contentType := reportForm(validReport(), uploads)
			resp := send("POST", "/api/reports", body, http.Header{"Content-Type": {contentType}})

			var record Record
			decodeBody(resp, &record)
			Expect(record.Items[0].Attachments[0].ContentType).To(Equal("application/pdf"))
		})

		It("returns the problems of an incomplete report", func() {
			body, contentType := reportForm(validReport(), validUploads()[:1])
			resp := send("POST", "/api/reports", body, http.Header{"Content-Type": {contentType}})
			Expect(resp.StatusCode).To(Equal(http.StatusUnprocessableEntity))

			var result struct {
				Problems []ledger.Problem `json:"problems"`
			}
			decodeBody(resp, &result)
			Expect(result.Problems).To(HaveLen(1))
			Expect(result.Problems[0].ItemIDs).To(Equal([]int{1}))
			Expect(db.records).To(BeEmpty())
		})

		It("rejects files for unknown items", func() {
			uploads := append(validUploads(), Upload{ItemID: 9, Name: "x.jpg", Data: []byte("x")})
			body, contentType := reportForm(validReport(), uploads)
			resp := send("POST", "/api/reports", body, http.Header{"Content-Type": {contentType}})
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("rejects a request without a form", func() {
			resp := send("POST", "/api/reports", strings.NewReader("{}"), http.Header{"Content-Type": {"application/json"}})
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("POST /api/reports/export", func() {
		It("downloads the ZIP without storing it", func() {
			body, contentType := reportForm(validReport(), validUploads())
			resp := send("POST", "/api/reports/export", body, http.Header{"Content-Type": {contentType}})
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(Equal("application/zip"))
			Expect(resp.Header.Get("Content-Disposition")).To(ContainSubstring("PRESTACAO_Loja_Centro_2024-06-10.zip"))

			data, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(zipNames(data)).To(ContainElement("relatorio.pdf"))
			Expect(storage.files).To(BeEmpty())
		})
	})

	Describe("POST /api/scan", func() {
		scanForm := func() (*bytes.Buffer, string) {
			body := &bytes.Buffer{}
			writer := multipart.NewWriter(body)
			part, err := writer.CreateFormFile("file", "cupom.jpg")
			Expect(err).NotTo(HaveOccurred())
			_, err = part.Write([]byte("jpeg"))
			Expect(err).NotTo(HaveOccurred())
			Expect(writer.Close()).To(Succeed())
			return body, writer.FormDataContentType()
		}

		When("no scanner is configured", func() {
			It("is unavailable", func() {
				body, contentType := scanForm()
				resp := send("POST", "/api/scan", body, http.Header{"Content-Type": {contentType}})
				resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusServiceUnavailable))
			})
		})

		When("a scanner is configured", func() {
			BeforeEach(func() {
				scanner = &mockScanner{proof: &scanning.ProofData{Supplier: "Padaria", Amount: 1250}}
			})

			It("returns the suggestion", func() {
				body, contentType := scanForm()
				resp := send("POST", "/api/scan", body, http.Header{"Content-Type": {contentType}})
				Expect(resp.StatusCode).To(Equal(http.StatusOK))

				var proof scanning.ProofData
				decodeBody(resp, &proof)
				Expect(proof.Supplier).To(Equal("Padaria"))
				Expect(proof.Amount).To(Equal(ledger.Money(1250)))
			})

			It("requires a file", func() {
				body := &bytes.Buffer{}
				writer := multipart.NewWriter(body)
				Expect(writer.Close()).To(Succeed())
				resp := send("POST", "/api/scan", body, http.Header{"Content-Type": {writer.FormDataContentType()}})
				resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			})
		})
	})

	Describe("stores", func() {
		BeforeEach(func() {
			db.stores["s1"] = &Store{ID: "s1", Name: "Loja Centro", Manager: "maria", FixedFund: 50000}
		})

		It("lists stores publicly", func() {
			resp := send("GET", "/api/stores", nil, nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			var stores []Store
			decodeBody(resp, &stores)
			Expect(stores).To(HaveLen(1))
		})

		It("builds a pre-filled report", func() {
			resp := send("GET", "/api/stores/s1/report", nil, nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			var report ledger.Draft
			decodeBody(resp, &report)
			Expect(report.Header.HolderName).To(Equal("MARIA"))
			Expect(report.Header.DisbursedFund).To(Equal(ledger.Money(50000)))
			Expect(report.Header.ReportDate).To(Equal(ledger.NewDate(2024, 6, 10)))
		})

		It("returns 404 for an unknown store", func() {
			resp := send("GET", "/api/stores/nope/report", nil, nil)
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})

		It("requires a session to change stores", func() {
			resp := sendJSON("PUT", "/api/stores", Store{Name: "Nova"})
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
		})

		It("saves a store", func() {
			data, _ := json.Marshal(Store{Name: "Nova", PixKey: "maria@example.com"})
			header := bearer()
			header.Set("Content-Type", "application/json")
			resp := send("PUT", "/api/stores", bytes.NewReader(data), header)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			var saved Store
			decodeBody(resp, &saved)
			Expect(saved.ID).NotTo(BeEmpty())
			Expect(saved.Department).To(Equal(ledger.DefaultDepartment))
		})

		It("rejects an invalid store", func() {
			data, _ := json.Marshal(Store{Name: "Nova", PixKey: "not a key"})
			resp := send("PUT", "/api/stores", bytes.NewReader(data), bearer())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("deletes a store", func() {
			resp := send("DELETE", "/api/stores/s1", nil, bearer())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			Expect(db.stores).To(BeEmpty())
		})
	})

	Describe("session", func() {
		It("sets a cookie that opens the dashboard", func() {
			resp := sendJSON("POST", "/api/login", map[string]string{"username": "Admin", "password": "s3cret"})
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			var result map[string]string
			decodeBody(resp, &result)
			Expect(result["token"]).NotTo(BeEmpty())

			var cookie *http.Cookie
			for _, c := range resp.Cookies() {
				if c.Name == sessionCookie {
					cookie = c
				}
			}
			Expect(cookie).NotTo(BeNil())
			Expect(cookie.HttpOnly).To(BeTrue())

			records := send("GET", "/api/records", nil, http.Header{"Cookie": {cookie.Name + "=" + cookie.Value}})
			records.Body.Close()
			Expect(records.StatusCode).To(Equal(http.StatusOK))
		})

		It("rejects a wrong password", func() {
			resp := sendJSON("POST", "/api/login", map[string]string{"username": "admin", "password": "nope"})
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
		})

		It("clears the cookie on logout", func() {
			resp := send("POST", "/api/logout", nil, nil)
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			Expect(resp.Header.Get("Set-Cookie")).To(ContainSubstring(sessionCookie + "="))
		})
	})

	Describe("records", func() {
		BeforeEach(func() {
			r1 := &Record{ID: "r1", PDFPath: "relatorios/r1.pdf", CreatedAt: fixedNow}
			r1.Header.Store = "Loja Centro"
			r1.Header.ReportDate = ledger.NewDate(2024, 6, 1)
			r1.Items = []ledger.LineItem{{ID: 1, Attachments: []ledger.Attachment{
				{Name: "nf.jpg", ContentType: "image/jpeg", Path: "anexos/1_1_nf.jpg"},
			}}}
			db.records["r1"] = r1
			storage.files["relatorios/r1.pdf"] = []byte("%PDF-r1")
			storage.files["anexos/1_1_nf.jpg"] = []byte("jpeg")

			r2 := &Record{ID: "r2", CreatedAt: fixedNow}
			r2.Header.Store = "CD Norte"
			r2.Header.ReportDate = ledger.NewDate(2024, 1, 1)
			db.records["r2"] = r2
		})

		It("requires a session", func() {
			resp := send("GET", "/api/records", nil, nil)
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
		})

		It("rejects a forged token", func() {
			resp := send("GET", "/api/records", nil, http.Header{"Authorization": {"Bearer forged"}})
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
		})

		It("lists records matching the filter", func() {
			resp := send("GET", "/api/records?store=Loja+Centro", nil, bearer())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			var records []*Record
			decodeBody(resp, &records)
			Expect(records).To(HaveLen(1))
			Expect(records[0].ID).To(Equal("r1"))
		})

		It("rejects a malformed date filter", func() {
			resp := send("GET", "/api/records?start=01/06/2024", nil, bearer())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("returns one record", func() {
			resp := send("GET", "/api/records/r1", nil, bearer())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			var record Record
			decodeBody(resp, &record)
			Expect(record.Header.Store).To(Equal("Loja Centro"))
		})

		It("returns 404 for an unknown record", func() {
			resp := send("GET", "/api/records/nope", nil, bearer())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})

		It("streams a stored proof", func() {
			resp := send("GET", "/api/records/r1/files/anexos/1_1_nf.jpg", nil, bearer())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(Equal("image/jpeg"))
			data, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(data).To(Equal([]byte("jpeg")))
		})

		It("downloads the archive", func() {
			resp := send("GET", "/api/records/r1/archive", nil, bearer())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Disposition")).To(ContainSubstring("ARQUIVOS_Loja_Centro_r1.zip"))
		})

		It("downloads the spreadsheet", func() {
			resp := send("GET", "/api/records/export.xlsx", nil, bearer())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Disposition")).To(ContainSubstring("PRESTACOES_2024-06-10.xlsx"))
		})

		It("deletes a record", func() {
			resp := send("DELETE", "/api/records/r1", nil, bearer())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			Expect(db.records).NotTo(HaveKey("r1"))
			Expect(storage.files).NotTo(HaveKey("relatorios/r1.pdf"))
		})

		It("cleans up old records", func() {
			resp := send("POST", "/api/records/cleanup?days=30", nil, bearer())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			var result map[string]int
			decodeBody(resp, &result)
			Expect(result["removed"]).To(Equal(1))
			Expect(db.records).To(HaveKey("r1"))
			Expect(db.records).NotTo(HaveKey("r2"))
		})

		It("rejects a negative cleanup age", func() {
			resp := send("POST", "/api/records/cleanup?days=-1", nil, bearer())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})
	})
})
