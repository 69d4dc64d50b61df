package main

import (
	"context"
	"sync"

	"github.com/spf13/cobra"

	"github.com/seelobuilds-bit/pilates-v4-sub005/internal/kafka"
	"github.com/seelobuilds-bit/pilates-v4-sub005/internal/notify"
)

func newWorkerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run the settlement and notification consumers",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log.LogProcess("STARTUP", "Studio booking worker starting up...")

			cfg := loadConfig(true)
			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			var wg sync.WaitGroup
			ctx, cancel := context.WithCancel(ctx)
			defer cancel()

			if cfg.Kafka.Mock {
				log.Warn("KAFKA", "Mock mode: webhooks settle in-process, no settlement consumer started")
			} else {
				consumer, err := kafka.NewSettlementConsumer(cfg.Kafka.Brokers, cfg.Kafka.GroupID, log)
				if err != nil {
					return err
				}
				defer consumer.Close()

				wg.Add(1)
				go func() {
					defer wg.Done()
					log.LogKafka("START", "consumer", "Starting settlement consumer")
					if err := consumer.ConsumeSettlements(ctx, a.bookings.HandleSettlementRequest); err != nil && ctx.Err() == nil {
						log.Error("KAFKA", "Consumer error: "+err.Error())
						cancel()
					}
				}()
			}

			if cfg.RabbitMQ.URL != "" {
				var sender notify.Sender = notify.NewLogNotifier(log)
				if cfg.SMTP.Host != "" {
					sender = notify.NewMailer(cfg.SMTP, log)
				}
				w := notify.NewWorker(cfg.RabbitMQ.URL, cfg.RabbitMQ.Queue, sender, log)

				wg.Add(1)
				go func() {
					defer wg.Done()
					_ = w.Run(ctx)
				}()
			} else {
				log.Warn("RABBITMQ", "RABBITMQ_URL not set, confirmation emails are sent inline")
			}

			<-ctx.Done()
			log.Warn("SHUTDOWN", "Stopping consumers...")
			wg.Wait()
			log.Info("SHUTDOWN", "Worker shutdown completed")
			return nil
		},
	}
}
