package rabbitmq

import (
	"fmt"

	"github.com/streadway/amqp"
)

// ConsumeMessages подписывается на очередь и возвращает канал доставок.
// Подтверждение сообщений ручное: обработчик обязан вызвать Ack/Nack.
func ConsumeMessages(ch *amqp.Channel, queueName, consumer string) (<-chan amqp.Delivery, error) {
	const op = "rabbitmq.ConsumeMessages"

	deliveries, err := ch.Consume(queueName, consumer, false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return deliveries, nil
}

// ChannelPublisher оборачивает amqp.Channel для передачи в сервисы
// через узкий интерфейс публикации.
type ChannelPublisher struct {
	ch *amqp.Channel
}

// NewChannelPublisher создает ChannelPublisher поверх открытого канала.
func NewChannelPublisher(ch *amqp.Channel) *ChannelPublisher {
	return &ChannelPublisher{ch: ch}
}

// Publish публикует сообщение в обменник с ключом маршрутизации.
func (p *ChannelPublisher) Publish(exchange, routingKey string, message any) error {
	return PublishMessage(p.ch, exchange, routingKey, message)
}
