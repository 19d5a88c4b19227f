package mq

import (
	"context"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"WaBlast/config"
)

// 派发任务拓扑：延迟交换机（x-delayed-message 插件）+ 派发队列
const (
	DelayedExchange  = "wablast.delayed"
	DispatchQueue    = "campaign.dispatch"
	DispatchRoutingKey = "campaign.dispatch"
)

var (
	conn     *amqp.Connection
	connOnce sync.Once
	connErr  error
)

func Init() error {
	connOnce.Do(func() {
		url := config.Cfg.GetRabbitMQURL()

		conn, connErr = amqp.Dial(url)
		if connErr != nil {
			return
		}

		ch, err := conn.Channel()
		if err != nil {
			connErr = err
			return
		}
		defer ch.Close()

		connErr = declareTopology(ch)
	})

	return connErr
}

func declareTopology(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(
		DelayedExchange,
		"x-delayed-message",
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		amqp.Table{"x-delayed-type": "topic"},
	); err != nil {
		return err
	}

	if _, err := ch.QueueDeclare(
		DispatchQueue,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		nil,
	); err != nil {
		return err
	}

	return ch.QueueBind(DispatchQueue, DispatchRoutingKey, DelayedExchange, false, nil)
}

func Connection() *amqp.Connection {
	return conn
}

func Close(ctx context.Context) error {
	if conn == nil {
		return nil
	}

	done := make(chan error, 1)
	go func() {
		done <- conn.Close()
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}
