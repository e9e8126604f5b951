package client

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mfa-service/internal/config"
)

type stubSNS struct {
	optedOut  bool
	published []string
}

func (s *stubSNS) Publish(_ context.Context, in *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
	s.published = append(s.published, aws.ToString(in.PhoneNumber))
	return &sns.PublishOutput{MessageId: aws.String("msg-1")}, nil
}

func (s *stubSNS) CheckIfPhoneNumberIsOptedOut(_ context.Context, _ *sns.CheckIfPhoneNumberIsOptedOutInput, _ ...func(*sns.Options)) (*sns.CheckIfPhoneNumberIsOptedOutOutput, error) {
	return &sns.CheckIfPhoneNumberIsOptedOutOutput{IsOptedOut: s.optedOut}, nil
}

func newTestSNSClient(stub *stubSNS) *SNSClient {
	return &SNSClient{
		client: stub,
		config: &config.SMSConfig{
			SMSType:         "Transactional",
			MessageTemplate: "Your code is %s",
		},
	}
}

func TestSendCode(t *testing.T) {
	stub := &stubSNS{}
	c := newTestSNSClient(stub)

	id, err := c.SendCode(context.Background(), "+15550001234", "123456")
	require.NoError(t, err)
	assert.Equal(t, "msg-1", id)
	assert.Equal(t, []string{"+15550001234"}, stub.published)
}

func TestSendCode_OptedOutNumber(t *testing.T) {
	stub := &stubSNS{optedOut: true}
	c := newTestSNSClient(stub)

	_, err := c.SendCode(context.Background(), "+15550001234", "123456")
	assert.ErrorIs(t, err, ErrPhoneOptedOut)
	assert.Empty(t, stub.published, "opted-out numbers must not be published to")
}

func TestSendCode_RejectsBadNumber(t *testing.T) {
	stub := &stubSNS{}
	c := newTestSNSClient(stub)

	for _, phone := range []string{"", "5550001234", "+0123", "not-a-number"} {
		_, err := c.SendCode(context.Background(), phone, "123456")
		assert.ErrorIs(t, err, ErrInvalidPhoneNumber, "phone %q", phone)
	}
	assert.Empty(t, stub.published)
}
