package eventbus

// SubscriptionOpt 订阅选项
type SubscriptionOpt func(*subscriptionSettings)

type subscriptionSettings struct {
	types []string
	name  string
}

func (s subscriptionSettings) filter() map[string]struct{} {
	if len(s.types) == 0 {
		return nil
	}
	f := make(map[string]struct{}, len(s.types))
	for _, t := range s.types {
		f[t] = struct{}{}
	}
	return f
}

// WithTypes 只接收指定类型的事件
//
// 滞后计数仍然基于全部事件。
func WithTypes(eventTypes ...string) SubscriptionOpt {
	return func(s *subscriptionSettings) {
		s.types = append(s.types, eventTypes...)
	}
}

// WithName 为订阅命名，用于滞后日志
func WithName(name string) SubscriptionOpt {
	return func(s *subscriptionSettings) {
		s.name = name
	}
}
