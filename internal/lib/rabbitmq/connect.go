// Package rabbitmq содержит вспомогательные функции для работы с RabbitMQ:
// подключение с повторными попытками, объявление очередей, публикация и
// чтение сообщений.
package rabbitmq

import (
	"fmt"
	"time"

	"github.com/streadway/amqp"
)

// Connect устанавливает соединение с RabbitMQ, повторяя попытки
// с заданной задержкой.
func Connect(amqpURI string, maxRetries int, retryDelay time.Duration) (*amqp.Connection, error) {
	const op = "rabbitmq.Connect"

	var conn *amqp.Connection
	var err error
	for i := 0; i < maxRetries; i++ {
		conn, err = amqp.Dial(amqpURI)
		if err == nil {
			return conn, nil
		}
		time.Sleep(retryDelay)
	}
	return nil, fmt.Errorf("%s: %w", op, err)
}

// SetupChannel открывает канал и объявляет обменники, очереди и привязки
// из переданной конфигурации.
func SetupChannel(conn *amqp.Connection, queues []QueueConfig) (*amqp.Channel, error) {
	const op = "rabbitmq.SetupChannel"

	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	for _, q := range queues {
		if q.Exchange != "" {
			if err := ch.ExchangeDeclare(q.Exchange, "direct", true, false, false, false, nil); err != nil {
				return nil, fmt.Errorf("%s: declare exchange %s: %w", op, q.Exchange, err)
			}
		}
		if _, err := ch.QueueDeclare(q.QueueName, true, false, false, false, nil); err != nil {
			return nil, fmt.Errorf("%s: declare queue %s: %w", op, q.QueueName, err)
		}
		if q.Exchange != "" {
			if err := ch.QueueBind(q.QueueName, q.RoutingKey, q.Exchange, false, nil); err != nil {
				return nil, fmt.Errorf("%s: bind queue %s: %w", op, q.QueueName, err)
			}
		}
	}
	return ch, nil
}
