package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"andaman_booking_echo/internal/config"
	"andaman_booking_echo/internal/gateway"
	"andaman_booking_echo/internal/models"
	"andaman_booking_echo/internal/testutil"
)

func TestNewRequiresDatabase(t *testing.T) {
	_, err := New(&config.Config{}, testutil.QuietLogger(), Options{})
	assert.ErrorContains(t, err, "DATABASE_URL")
}

func TestWireGatewaysOnlyConfigured(t *testing.T) {
	a := &App{
		Config: &config.Config{
			GatewayTimeout: time.Second,
			Razorpay:       config.RazorpayConfig{KeyID: "rzp_test", KeySecret: "secret"},
			PhonePe:        config.PhonePeConfig{MerchantID: "M1"},
		},
		Log: testutil.QuietLogger(),
	}

	a.wireGateways()

	assert.NotNil(t, a.Razorpay)
	assert.Nil(t, a.PhonePe, "phonepe needs a salt key")
	assert.Nil(t, a.Midtrans)

	_, err := a.Gateways.Client(models.PaymentGatewayRazorpay)
	assert.NoError(t, err)
	for _, gw := range []models.PaymentGateway{models.PaymentGatewayPhonePe, models.PaymentGatewayMidtrans} {
		_, err := a.Gateways.Client(gw)
		assert.ErrorIs(t, err, gateway.ErrUnknownGateway, string(gw))
	}
}

func TestWireProviders(t *testing.T) {
	a := &App{
		Config: &config.Config{
			ProviderTimeout: time.Second,
			GreenOcean:      config.OperatorConfig{BaseURL: "https://greenocean.example"},
			Sealink:         config.OperatorConfig{BaseURL: "https://sealink.example"},
		},
		Log: testutil.QuietLogger(),
	}

	a.wireProviders()

	assert.Equal(t, []string{"greenocean", "sealink"}, a.Providers.Names())
}

func TestTaskEnvLeavesUnconfiguredSendersNil(t *testing.T) {
	a := &App{Config: &config.Config{}, Log: testutil.QuietLogger(), DB: testutil.NewDB(t)}

	env := a.TaskEnv()

	assert.True(t, env.Email == nil)
	assert.True(t, env.WhatsApp == nil)
	assert.True(t, env.Reconciler == nil)
	assert.NotNil(t, env.DB)
}

func TestTaskEnvWithSenders(t *testing.T) {
	a := &App{
		Config: &config.Config{
			SMTP: config.SMTPConfig{Host: "smtp.example", Port: "587", User: "u", Password: "p"},
			Waha: config.WahaConfig{BaseURL: "http://waha:3000"},
		},
		Log: testutil.QuietLogger(),
	}

	env := a.TaskEnv()

	require.NotNil(t, env.Email)
	require.NotNil(t, env.WhatsApp)
}
