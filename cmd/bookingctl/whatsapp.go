package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"andaman_booking_echo/internal/services"
)

func whatsappCmd() *cobra.Command {
	var phone, msg string

	cmd := &cobra.Command{
		Use:   "whatsapp",
		Short: "Send a test WhatsApp message through WAHA",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			chatID := services.NormalizeChatID(phone)
			log.WithField("chat_id", chatID).Info("Sending WhatsApp message")

			if err := services.NewWahaService(cfg.Waha, log).SendMessage(cmd.Context(), chatID, msg); err != nil {
				return fmt.Errorf("send message: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Message sent")
			return nil
		},
	}

	cmd.Flags().StringVar(&phone, "phone", "", "Phone number, e.g. 919876543210")
	cmd.Flags().StringVar(&msg, "msg", "Test message from bookingctl", "Message body")
	_ = cmd.MarkFlagRequired("phone")
	return cmd
}
