package exchange

import (
	"fmt"
	"strings"
)

// NewAdapter 按逻辑交易所名解析适配器。
func NewAdapter(creds Credentials) (Adapter, error) {
	switch strings.ToLower(creds.Exchange) {
	case "coindcx", "coindcx_f":
		return NewCoinDCX(creds), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedExchange, creds.Exchange)
	}
}

// Registry 已初始化的适配器集合，按名字查找。
type Registry map[string]Adapter

func (r Registry) Lookup(name string) (Adapter, error) {
	a, ok := r[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedExchange, name)
	}
	return a, nil
}
