package ledger

import (
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("ValidateCompleteness", func() {
	var (
		header Header
		list   []LineItem
		result ValidationResult
	)

	BeforeEach(func() {
		header = Header{
			HolderName:    "MARIA SILVA",
			TaxID:         "111.444.777-35",
			Store:         "Loja Centro",
			Department:    "Loja",
			PayoutKey:     "maria@example.com",
			DisbursedFund: 30000,
			ReportDate:    NewDate(2024, time.March, 5),
		}
		list = []LineItem{
			{ID: 1, Amount: 5000, Attachments: []Attachment{{Name: "nf.jpg"}}},
		}
	})

	JustBeforeEach(func() {
		result = ValidateCompleteness(header, list)
	})

	When("everything is filled in", func() {
		It("passes", func() {
			Expect(result.OK()).To(BeTrue())
			Expect(result.Err()).To(BeNil())
		})
	})

	When("there are no items", func() {
		BeforeEach(func() {
			list = nil
		})

		It("passes", func() {
			Expect(result.OK()).To(BeTrue())
		})
	})

	When("the holder name is empty", func() {
		BeforeEach(func() {
			header.HolderName = "   "
		})

		It("reports the missing field", func() {
			p, ok := result.Find(MissingField)
			Expect(ok).To(BeTrue())
			Expect(p.Fields).To(Equal([]string{"holderName"}))
		})
	})

	When("several fields are empty", func() {
		BeforeEach(func() {
			header.TaxID = ""
			header.Store = ""
			header.Department = ""
			header.ReportDate = Date{}
		})

		It("names each of them in one problem", func() {
			p, ok := result.Find(MissingField)
			Expect(ok).To(BeTrue())
			Expect(p.Fields).To(Equal([]string{"taxId", "store", "department", "reportDate"}))
		})
	})

	When("the fund is zero", func() {
		BeforeEach(func() {
			header.DisbursedFund = 0
		})

		It("reports a non-positive fund", func() {
			Expect(result.Has(NonPositiveFund)).To(BeTrue())
		})
	})

	When("the fund is negative", func() {
		BeforeEach(func() {
			header.DisbursedFund = -1
		})

		It("reports a non-positive fund", func() {
			Expect(result.Has(NonPositiveFund)).To(BeTrue())
		})
	})

	When("items lack attachments", func() {
		BeforeEach(func() {
			list = append(list,
				LineItem{ID: 2, Amount: 100},
				LineItem{ID: 5, Amount: 100, Attachments: []Attachment{}},
			)
		})

		It("lists their ids", func() {
			p, ok := result.Find(MissingAttachment)
			Expect(ok).To(BeTrue())
			Expect(p.ItemIDs).To(Equal([]int{2, 5}))
		})
	})

	When("the payout key is invalid", func() {
		BeforeEach(func() {
			header.PayoutKey = "user@@bad"
		})

		It("reports it", func() {
			Expect(result.Has(InvalidPayoutKey)).To(BeTrue())
			Expect(result.Has(MissingField)).To(BeFalse())
		})
	})

	When("the payout key is empty", func() {
		BeforeEach(func() {
			header.PayoutKey = ""
		})

		It("reports a missing field, not an invalid key", func() {
			p, ok := result.Find(MissingField)
			Expect(ok).To(BeTrue())
			Expect(p.Fields).To(ContainElement("payoutKey"))
			Expect(result.Has(InvalidPayoutKey)).To(BeFalse())
		})
	})

	When("everything is wrong at once", func() {
		BeforeEach(func() {
			header = Header{PayoutKey: "nope", ReportDate: NewDate(2024, time.March, 5)}
			list = []LineItem{{ID: 1}}
		})

		It("collects every problem", func() {
			Expect(result.Problems).To(HaveLen(4))
			Expect(result.Has(MissingField)).To(BeTrue())
			Expect(result.Has(NonPositiveFund)).To(BeTrue())
			Expect(result.Has(MissingAttachment)).To(BeTrue())
			Expect(result.Has(InvalidPayoutKey)).To(BeTrue())
		})

		It("returns a ValidationError", func() {
			var verr *ValidationError
			Expect(errors.As(result.Err(), &verr)).To(BeTrue())
			Expect(verr.Problems).To(HaveLen(4))
			Expect(verr.Error()).To(ContainSubstring("disbursed fund must be greater than zero"))
		})
	})
})
