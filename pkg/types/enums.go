package types

// Direction 买卖方向
type Direction int32

const (
	Buy  Direction = 1  // 买
	Sell Direction = -1 // 卖
)

func (d Direction) String() string {
	switch d {
	case Buy:
		return "Buy"
	case Sell:
		return "Sell"
	}
	return "None"
}

// DirectionOf 由带符号数量得到方向，0 视为卖
func DirectionOf(volume int) Direction {
	if volume > 0 {
		return Buy
	}
	return Sell
}

// Sign 方向对应的符号
func (d Direction) Sign() int {
	return int(d)
}

// OrderType 报单类型
// 等待时间 >= 0 时下 Limit 单并由引擎超时撤单，否则下 FAK
type OrderType int32

const (
	OrderLimit OrderType = 0 // 限价
	OrderFAK   OrderType = 1 // 立即成交剩余撤销
)

func (t OrderType) String() string {
	if t == OrderFAK {
		return "FAK"
	}
	return "Limit"
}

// OrderTypeFor 根据等待时间选择报单类型
func OrderTypeFor(waitMillis int) OrderType {
	if waitMillis >= 0 {
		return OrderLimit
	}
	return OrderFAK
}

// OrderKind 订单在引擎内的用途
type OrderKind int32

const (
	KindTry   OrderKind = 0 // 主动腿
	KindForce OrderKind = 1 // 跟随腿（ForceTask）
	KindClear OrderKind = 2 // 残余仓位清理
)

func (k OrderKind) String() string {
	switch k {
	case KindTry:
		return "try"
	case KindForce:
		return "force"
	case KindClear:
		return "clear"
	}
	return "unknown"
}

// OrderStatus 回报中的订单状态
type OrderStatus int32

const (
	StatusPending   OrderStatus = 0 // 已发送未确认
	StatusAccepted  OrderStatus = 1 // 已确认，挂单中
	StatusPartial   OrderStatus = 2 // 部分成交
	StatusFilled    OrderStatus = 3 // 全部成交
	StatusCancelled OrderStatus = 4 // 已撤销（可能有部分成交）
	StatusRejected  OrderStatus = 5 // 拒单
)

// Finished 订单是否已终结
func (s OrderStatus) Finished() bool {
	return s == StatusFilled || s == StatusCancelled || s == StatusRejected
}

func (s OrderStatus) String() string {
	switch s {
	case StatusPending:
		return "PENDING"
	case StatusAccepted:
		return "ACCEPTED"
	case StatusPartial:
		return "PARTIAL"
	case StatusFilled:
		return "FILLED"
	case StatusCancelled:
		return "CANCELLED"
	case StatusRejected:
		return "REJECTED"
	}
	return "UNKNOWN"
}

// Constrain 交易约束等级，数值越大约束越强
type Constrain int32

const (
	Normal     Constrain = 0 // 正常开平
	CloseOnly  Constrain = 1 // 只平不开
	Squeeze    Constrain = 2 // 按 TWAP 压缩超限仓位
	ForceClear Constrain = 3 // 按 TWAP 清仓
	Disabled   Constrain = 4 // 不做任何动作
)

// Combine 取多个约束中最强的一个
func Combine(cs ...Constrain) Constrain {
	out := Normal
	for _, c := range cs {
		if c > out {
			out = c
		}
	}
	return out
}

func (c Constrain) String() string {
	switch c {
	case Normal:
		return "Normal"
	case CloseOnly:
		return "CloseOnly"
	case Squeeze:
		return "Squeeze"
	case ForceClear:
		return "ForceClear"
	case Disabled:
		return "Disabled"
	}
	return "Unknown"
}

// TimerType 定时器类型
type TimerType int32

const (
	TimerPreTrade         TimerType = 0
	TimerDayTrade         TimerType = 1
	TimerOnlyClose        TimerType = 2
	TimerForceClose       TimerType = 3
	TimerDaySettle        TimerType = 4
	TimerDayEnd           TimerType = 5
	TimerPeriod           TimerType = 6
	TimerForceTaskTimeOut TimerType = 7
	TimerNtEnd            TimerType = 8
	TimerAutoCancel       TimerType = 9 // 挂单等待到期撤单
)

func (t TimerType) String() string {
	switch t {
	case TimerPreTrade:
		return "PreTrade"
	case TimerDayTrade:
		return "DayTrade"
	case TimerOnlyClose:
		return "OnlyClose"
	case TimerForceClose:
		return "ForceClose"
	case TimerDaySettle:
		return "DaySettle"
	case TimerDayEnd:
		return "DayEnd"
	case TimerPeriod:
		return "Period"
	case TimerForceTaskTimeOut:
		return "ForceTaskTimeOut"
	case TimerNtEnd:
		return "NtEnd"
	case TimerAutoCancel:
		return "AutoCancel"
	}
	return "Unknown"
}
