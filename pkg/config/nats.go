package config

// NATSConfig NATS 行情/报单通道
// 行情主题为 <MDSubject>.<symbol>，url 为空时不连接（回测/模拟）
type NATSConfig struct {
	URL             string `yaml:"url"`
	ClientID        uint32 `yaml:"client_id"` // 订单号前缀，同一柜台下各策略唯一
	MDSubject       string `yaml:"md_subject"`
	OrderSubject    string `yaml:"order_subject"`
	CancelSubject   string `yaml:"cancel_subject"`
	ResponseSubject string `yaml:"response_subject"`
	StatusSubject   string `yaml:"status_subject"`
	RequestTimeout  int    `yaml:"request_timeout_ms"`
}

// DefaultNATS 默认主题
func DefaultNATS() NATSConfig {
	return NATSConfig{
		ClientID:        1,
		MDSubject:       "md",
		OrderSubject:    "order.request",
		CancelSubject:   "order.cancel",
		ResponseSubject: "order.response",
		StatusSubject:   "strategy.status",
		RequestTimeout:  2000,
	}
}
