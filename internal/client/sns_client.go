package client

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	"go.uber.org/zap"

	"mfa-service/internal/config"
	"mfa-service/internal/util"
)

var (
	ErrInvalidPhoneNumber = errors.New("invalid phone number format, expected E.164")
	ErrPhoneOptedOut      = errors.New("phone number has opted out of SMS")

	e164Pattern = regexp.MustCompile(`^\+[1-9]\d{1,14}$`)
)

// snsAPI is the slice of the SNS service the client uses.
type snsAPI interface {
	Publish(ctx context.Context, in *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
	CheckIfPhoneNumberIsOptedOut(ctx context.Context, in *sns.CheckIfPhoneNumberIsOptedOutInput, optFns ...func(*sns.Options)) (*sns.CheckIfPhoneNumberIsOptedOutOutput, error)
}

// SNSClient delivers SMS messages through AWS SNS.
type SNSClient struct {
	client snsAPI
	config *config.SMSConfig
}

func NewSNSClient(ctx context.Context, cfg *config.Config) (*SNSClient, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.SMS.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	util.Info("SNS client initialized",
		zap.String("region", cfg.SMS.Region),
		zap.String("sms_type", cfg.SMS.SMSType))

	return &SNSClient{
		client: sns.NewFromConfig(awsCfg),
		config: &cfg.SMS,
	}, nil
}

// ValidatePhoneNumber enforces E.164.
func ValidatePhoneNumber(phone string) error {
	if phone == "" || !e164Pattern.MatchString(phone) {
		return ErrInvalidPhoneNumber
	}
	return nil
}

// SendCode delivers a one-time code to an E.164 phone number and
// returns the provider message ID.
func (s *SNSClient) SendCode(ctx context.Context, phone, code string) (string, error) {
	if err := ValidatePhoneNumber(phone); err != nil {
		return "", err
	}

	// SNS drops messages to opted-out numbers without an error, so the
	// caller would report a send that never happened.
	optedOut, err := s.CheckOptOut(ctx, phone)
	if err != nil {
		return "", err
	}
	if optedOut {
		util.Warn("sms suppressed, recipient opted out", zap.String("phone", util.MaskPhone(phone)))
		return "", ErrPhoneOptedOut
	}

	attrs := map[string]types.MessageAttributeValue{
		"AWS.SNS.SMS.SMSType": {
			DataType:    aws.String("String"),
			StringValue: aws.String(s.config.SMSType),
		},
	}
	if s.config.SenderID != "" {
		attrs["AWS.SNS.SMS.SenderID"] = types.MessageAttributeValue{
			DataType:    aws.String("String"),
			StringValue: aws.String(s.config.SenderID),
		}
	}

	out, err := s.client.Publish(ctx, &sns.PublishInput{
		PhoneNumber:       aws.String(phone),
		Message:           aws.String(fmt.Sprintf(s.config.MessageTemplate, code)),
		MessageAttributes: attrs,
	})
	if err != nil {
		return "", fmt.Errorf("sns publish failed: %w", err)
	}

	messageID := aws.ToString(out.MessageId)
	util.Info("sms sent", zap.String("message_id", messageID))
	return messageID, nil
}

// CheckOptOut reports whether the number previously opted out of SMS.
func (s *SNSClient) CheckOptOut(ctx context.Context, phone string) (bool, error) {
	out, err := s.client.CheckIfPhoneNumberIsOptedOut(ctx, &sns.CheckIfPhoneNumberIsOptedOutInput{
		PhoneNumber: aws.String(phone),
	})
	if err != nil {
		return false, fmt.Errorf("sns opt-out check failed: %w", err)
	}
	return out.IsOptedOut, nil
}
