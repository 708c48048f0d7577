package kafka

import (
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/require"
)

func TestCreateChannelRequiresBrokers(t *testing.T) {
	logger := watermill.NewStdLogger(false, false)

	cases := []struct {
		name    string
		brokers []string
	}{
		{"nil list", nil},
		{"empty list", []string{}},
		{"blank address from an empty flag", []string{""}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			pub, sub, err := CreateChannel(logger, "omniflow", tc.brokers)
			require.Error(t, err)
			require.Nil(t, pub)
			require.Nil(t, sub)
		})
	}
}
