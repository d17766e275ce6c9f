package sign

import (
	"fmt"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/unicode"
)

// Supported charsets.
const (
	CharsetUTF8 = "utf-8"
	CharsetGBK  = "gbk"
)

// LookupCharset returns the text encoding for a charset name.
func LookupCharset(name string) (encoding.Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", CharsetUTF8, "utf8":
		return unicode.UTF8, nil
	case CharsetGBK, "gb2312":
		return simplifiedchinese.GBK, nil
	case "gb18030":
		return simplifiedchinese.GB18030, nil
	default:
		return nil, fmt.Errorf("unsupported charset %q", name)
	}
}

// Encode converts UTF-8 content to the charset.
func Encode(enc encoding.Encoding, content []byte) ([]byte, error) {
	if enc == unicode.UTF8 {
		return content, nil
	}
	return enc.NewEncoder().Bytes(content)
}

// Decode converts charset-encoded content to UTF-8.
func Decode(enc encoding.Encoding, content []byte) ([]byte, error) {
	if enc == unicode.UTF8 {
		return content, nil
	}
	return enc.NewDecoder().Bytes(content)
}
