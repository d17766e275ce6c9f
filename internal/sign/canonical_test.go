package sign

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCanonicalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		params   Params
		expected string
	}{
		{
			name:     "empty map",
			params:   Params{},
			expected: "",
		},
		{
			name: "sorted by byte value",
			params: Params{
				"sign_type": "RSA2",
				"app_id":    "2021000000000000",
				"Method":    "upper sorts first",
				"charset":   "utf-8",
			},
			expected: "Method=upper sorts first&app_id=2021000000000000&charset=utf-8&sign_type=RSA2",
		},
		{
			name: "skips nil blank and file marker values",
			params: Params{
				"a_nil":   nil,
				"b_empty": "",
				"c_blank": " \t\n",
				"d_file":  "@/tmp/upload.png",
				"e_keep":  "value",
			},
			expected: "e_keep=value",
		},
		{
			name: "keeps inner at sign and whitespace",
			params: Params{
				"email":   "buyer@example.com",
				"subject": " padded ",
			},
			expected: "email=buyer@example.com&subject= padded ",
		},
		{
			name: "scalar coercion",
			params: Params{
				"amount":  88.5,
				"count":   3,
				"big":     int64(9007199254740993),
				"enabled": true,
				"hidden":  false,
				"num":     json.Number("0.010"),
				"zero":    0,
			},
			expected: "amount=88.5&big=9007199254740993&count=3&enabled=1&num=0.010&zero=0",
		},
		{
			name: "biz content is signed verbatim",
			params: Params{
				"biz_content": `{"out_trade_no":"20150320010101001","total_amount":"88.88"}`,
				"method":      "alipay.trade.query",
			},
			expected: `biz_content={"out_trade_no":"20150320010101001","total_amount":"88.88"}&method=alipay.trade.query`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, Canonicalize(tt.params))
		})
	}
}

func TestCanonicalize_Stable(t *testing.T) {
	t.Parallel()

	params := Params{"z": "1", "y": "2", "x": "3", "w": nil, "v": "@skip"}
	first := Canonicalize(params)
	for i := 0; i < 50; i++ {
		assert.Equal(t, first, Canonicalize(params))
	}
	assert.Equal(t, "x=3&y=2&z=1", first)
}

func TestStringify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		in     any
		want   string
		wantOK bool
	}{
		{name: "nil", in: nil, want: "", wantOK: false},
		{name: "string", in: "abc", want: "abc", wantOK: true},
		{name: "bytes", in: []byte("raw"), want: "raw", wantOK: true},
		{name: "true", in: true, want: "1", wantOK: true},
		{name: "false", in: false, want: "", wantOK: true},
		{name: "uint", in: uint32(7), want: "7", wantOK: true},
		{name: "float32", in: float32(1.25), want: "1.25", wantOK: true},
		{name: "large float without exponent", in: 1e21, want: "1000000000000000000000", wantOK: true},
		{name: "stringer", in: time.Duration(0), want: "0s", wantOK: true},
		{name: "fallback", in: []int{1, 2}, want: "[1 2]", wantOK: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := Stringify(tt.in)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParams_CloneMerge(t *testing.T) {
	t.Parallel()

	base := Params{"a": "1"}
	clone := base.Clone()
	clone.Merge(Params{"a": "2", "b": "3"})

	assert.Equal(t, Params{"a": "1"}, base)
	assert.Equal(t, Params{"a": "2", "b": "3"}, clone)
}
