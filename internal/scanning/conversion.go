package scanning

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	"image/png"
	"strings"

	"github.com/gen2brain/go-fitz"
	"github.com/gen2brain/heic"
)

// proofScanPrompt is shared by every LLM provider.
const proofScanPrompt = `Você está analisando um comprovante de despesa brasileiro (nota fiscal, cupom fiscal, recibo ou NFC-e). Leia todo o texto da imagem e extraia:

1. **supplier**: razão social ou nome fantasia do estabelecimento emissor, normalmente no topo do documento.
2. **document_number**: número da nota fiscal, do cupom ou do recibo (por exemplo "NF 12345" ou "Extrato No. 678"). Sem a chave de acesso de 44 dígitos.
3. **date**: data de emissão no formato AAAA-MM-DD.
4. **amount**: valor total pago, como número com ponto decimal (por exemplo 42.75 para R$ 42,75).
5. **reason**: uma descrição curta do que foi comprado (por exemplo "Material de limpeza").

Responda SOMENTE com JSON válido neste formato:
{
  "supplier": "Nome do estabelecimento",
  "document_number": "12345",
  "date": "AAAA-MM-DD",
  "amount": 0.00,
  "reason": "Descrição curta"
}

Importante:
- Use null para campos que não encontrar
- Não escreva nada antes ou depois do JSON
- Não use blocos de código markdown`

// pdfToImage renders the first page of a PDF
func pdfToImage(pdfData []byte) (image.Image, error) {
	doc, err := fitz.NewFromMemory(pdfData)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	defer doc.Close()

	// Proofs are nearly always a single page
	img, err := doc.Image(0)
	if err != nil {
		return nil, fmt.Errorf("rendering PDF page: %w", err)
	}
	return img, nil
}

// decodeImage decodes JPEG, PNG, GIF and HEIC/HEIF images
func decodeImage(data []byte, mimeType string) (image.Image, error) {
	// Go's image package has no HEIC decoder and iPhones produce them by default
	if isHEICFormat(data) || isHEICMimeType(mimeType) {
		img, err := heic.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("decoding HEIC/HEIF image: %w", err)
		}
		return img, nil
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		if strings.Contains(err.Error(), "unknown format") || strings.Contains(err.Error(), "unsupported") {
			return nil, fmt.Errorf("unsupported image format. Supported formats: JPEG, PNG, GIF, HEIC, HEIF, PDF. Error: %w", err)
		}
		return nil, fmt.Errorf("decoding image: %w", err)
	}
	return img, nil
}

// isHEICFormat checks for an ftyp box with a HEIC brand at offset 4
func isHEICFormat(data []byte) bool {
	if len(data) < 12 || string(data[4:8]) != "ftyp" {
		return false
	}
	switch string(data[8:12]) {
	case "heic", "heix", "heif", "mif1", "msf1":
		return true
	}
	return false
}

func isHEICMimeType(mimeType string) bool {
	return strings.Contains(mimeType, "heic") || strings.Contains(mimeType, "heif")
}

func normalizeMimeType(contentType string) string {
	mimeType := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.Index(mimeType, ";"); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}
	return mimeType
}

// IsConvertible reports whether ToPNG can handle the content type.
func IsConvertible(contentType string) bool {
	mimeType := normalizeMimeType(contentType)
	switch {
	case mimeType == "application/pdf", isHEICMimeType(mimeType):
		return true
	case strings.HasPrefix(mimeType, "image/"):
		return mimeType == "image/png" || mimeType == "image/jpeg" || mimeType == "image/jpg" || mimeType == "image/gif"
	}
	return false
}

// ToPNG converts a proof (first page of a PDF, or a JPEG, GIF, HEIC or PNG
// image) to PNG. PNG input is returned unchanged. An empty content type is
// treated as JPEG.
func ToPNG(data []byte, contentType string) ([]byte, error) {
	mimeType := normalizeMimeType(contentType)
	if mimeType == "" {
		mimeType = "image/jpeg"
	}

	var (
		img image.Image
		err error
	)
	switch {
	case mimeType == "application/pdf":
		img, err = pdfToImage(data)
		if err != nil {
			return nil, fmt.Errorf("converting PDF to image: %w", err)
		}
	case mimeType == "image/png" && !isHEICFormat(data):
		return data, nil
	default:
		img, err = decodeImage(data, mimeType)
		if err != nil {
			return nil, fmt.Errorf("converting image to PNG: %w", err)
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding PNG: %w", err)
	}
	return buf.Bytes(), nil
}
