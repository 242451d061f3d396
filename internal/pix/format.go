package pix

import "fmt"

// Format masks a valid key for display. CPF, CNPJ and phone keys get their
// usual punctuation; anything else is returned unchanged.
func Format(input string) string {
	c := Classify(input)
	n := onlyDigits(input)

	switch c.Kind {
	case NationalID11:
		return fmt.Sprintf("%s.%s.%s-%s", n[0:3], n[3:6], n[6:9], n[9:11])
	case NationalID14:
		return fmt.Sprintf("%s.%s.%s/%s-%s", n[0:2], n[2:5], n[5:8], n[8:12], n[12:14])
	case Phone:
		if len(n) == 13 {
			return fmt.Sprintf("+%s (%s) %s-%s", n[0:2], n[2:4], n[4:9], n[9:13])
		}
		return fmt.Sprintf("(%s) %s-%s", n[0:2], n[2:7], n[7:11])
	}
	return input
}
