package rabbitmq

// QueueConfig описывает очередь, её обменник и ключ маршрутизации.
type QueueConfig struct {
	Exchange   string
	QueueName  string
	RoutingKey string
}

// GetNotificationQueues возвращает очереди уведомлений об окончании подписки.
func GetNotificationQueues() []QueueConfig {
	return []QueueConfig{
		{Exchange: "notifications", QueueName: "notification.expiring", RoutingKey: "expiring"},
		{Exchange: "notifications", QueueName: "notification.expired", RoutingKey: "expired"},
	}
}

// GetPaymentQueues возвращает очереди подтверждений платежей от бота
// (оплаты через Telegram Stars).
func GetPaymentQueues() []QueueConfig {
	return []QueueConfig{
		{Exchange: "payments", QueueName: "payment.confirmed", RoutingKey: "confirmed"},
	}
}
