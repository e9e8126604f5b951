package factory

import (
	"context"
	"fmt"
	"sync"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"go.uber.org/zap"

	"mfa-service/internal/audit"
	"mfa-service/internal/bucketing"
	"mfa-service/internal/client"
	"mfa-service/internal/config"
	"mfa-service/internal/email"
	"mfa-service/internal/encryption"
	"mfa-service/internal/hashing"
	"mfa-service/internal/otpcode"
	"mfa-service/internal/repository/es"
	redisrepo "mfa-service/internal/repository/redis"
	"mfa-service/internal/repository/scylla"
	"mfa-service/internal/service"
	"mfa-service/internal/tls"
	"mfa-service/internal/util"
)

// Factory owns the lifecycle of every external dependency and wires
// the service layer together.
type Factory struct {
	config     *config.Config
	tlsManager *tls.Manager

	redisClient      *client.RedisClient
	scyllaClient     *scylla.ScyllaClient
	kafkaProducer    *client.KafkaProducer
	esClient         *client.ESClient
	clickhouseClient *client.ClickHouseClient
	ldapClient       *client.LDAPClient
	snsClient        *client.SNSClient

	hasher            *hashing.Hasher
	encryptionManager *encryption.Manager
	bucketingManager  *bucketing.Manager
	codeManager       *otpcode.Manager

	userRepository *scylla.UserRepository
	userIndex      *es.UserIndex
	auditRecorder  *audit.Recorder
	serviceFactory *service.ServiceFactory

	closeOnce sync.Once
	closed    chan struct{}
}

// NewFactory loads configuration and initializes every dependency. In
// production any unhealthy critical backend aborts startup; in
// development failures are logged and the process comes up degraded.
func NewFactory() (*Factory, error) {
	cfg := config.LoadConfig()

	util.Init(cfg.Environment, cfg.Logging.Level, cfg.Logging.Format)

	f := &Factory{
		config: cfg,
		closed: make(chan struct{}),
	}

	if cfg.Server.EnableTLS {
		f.tlsManager = tls.NewManager(tls.Options{
			Enabled:     cfg.Server.EnableTLS,
			AutoCert:    cfg.Server.AutoCert,
			Domain:      cfg.Server.Domain,
			CertFile:    cfg.Server.CertFile,
			KeyFile:     cfg.Server.KeyFile,
			AutoCertDir: cfg.Server.AutoCertDir,
			Email:       cfg.Server.ACMEEmail,
		})
	}

	if err := f.initializeClients(); err != nil {
		return nil, fmt.Errorf("failed to initialize clients: %w", err)
	}
	if err := f.initializeManagers(); err != nil {
		return nil, fmt.Errorf("failed to initialize managers: %w", err)
	}

	util.Info("factory initialized",
		zap.String("environment", cfg.Environment),
		zap.Bool("tls_enabled", cfg.Server.EnableTLS),
		zap.Bool("sms_enabled", cfg.SMS.Enabled),
		zap.Bool("kms_enabled", cfg.KMS.Enabled))
	return f, nil
}

func (f *Factory) initializeClients() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var initErrors []error

	if redisClient, err := client.NewRedisClient(f.config); err != nil {
		initErrors = append(initErrors, fmt.Errorf("redis: %w", err))
	} else {
		f.redisClient = redisClient
		if err := f.redisClient.HealthCheck(ctx); err != nil {
			initErrors = append(initErrors, fmt.Errorf("redis health check: %w", err))
		} else {
			util.Info("redis client initialized")
		}
	}

	if scyllaClient, err := scylla.NewScyllaClient(f.config); err != nil {
		initErrors = append(initErrors, fmt.Errorf("scylla: %w", err))
	} else {
		f.scyllaClient = scyllaClient
		if err := f.scyllaClient.HealthCheck(); err != nil {
			initErrors = append(initErrors, fmt.Errorf("scylla health check: %w", err))
		} else {
			util.Info("scylla client initialized")
		}
	}

	ldapClient, err := client.NewLDAPClient(f.config)
	f.ldapClient = ldapClient
	if err != nil {
		initErrors = append(initErrors, fmt.Errorf("ldap: %w", err))
	} else {
		util.Info("ldap client initialized")
	}

	// Kafka and the analytics backends are not on the login path; the
	// service runs without them.
	if producer, err := client.NewKafkaProducer(f.config); err != nil {
		util.Warn("kafka producer initialization failed, proceeding without kafka", zap.Error(err))
	} else {
		f.kafkaProducer = producer
		util.Info("kafka producer initialized")
	}

	if esClient, err := client.NewElasticsearchClient(f.config); err != nil {
		util.Warn("elasticsearch initialization failed, admin search degraded", zap.Error(err))
	} else {
		f.esClient = esClient
		util.Info("elasticsearch client initialized")
	}

	if chClient, err := client.NewClickHouseClient(f.config); err != nil {
		util.Warn("clickhouse initialization failed, audit trail degraded", zap.Error(err))
	} else {
		f.clickhouseClient = chClient
		util.Info("clickhouse client initialized")
	}

	if snsClient, err := client.NewSNSClient(ctx, f.config); err != nil {
		if f.config.SMS.Enabled {
			initErrors = append(initErrors, fmt.Errorf("sns: %w", err))
		} else {
			util.Warn("sns initialization failed, sms delivery disabled", zap.Error(err))
		}
	} else {
		f.snsClient = snsClient
		util.Info("sns client initialized")
	}

	if len(initErrors) > 0 {
		if f.config.IsProduction() {
			return fmt.Errorf("critical service initialization failed: %v", initErrors)
		}
		for _, err := range initErrors {
			util.Warn("service initialization warning", zap.Error(err))
		}
	}
	return nil
}

func (f *Factory) initializeManagers() error {
	f.hasher = hashing.NewHasher()
	f.bucketingManager = bucketing.NewManager(f.config)

	var kmsClient *kms.Client
	if f.config.KMS.Enabled {
		awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
			awsconfig.WithRegion(f.config.KMS.Region))
		if err != nil {
			return fmt.Errorf("kms: %w", err)
		}
		kmsClient = kms.NewFromConfig(awsCfg)
	}
	f.encryptionManager = encryption.NewManager(f.config, kmsClient)

	f.codeManager = f.buildCodeManager()
	return nil
}

// buildCodeManager wires the one-time-code lifecycle: Scylla holds the
// long-lived verification codes, Redis the short-lived login codes,
// with an opt-in in-process fallback for Redis outages.
func (f *Factory) buildCodeManager() *otpcode.Manager {
	var durable otpcode.DurableStore
	if f.scyllaClient != nil {
		durable = scylla.NewCodeRepository(f.scyllaClient)
	}
	var ttl otpcode.TTLStore
	if f.redisClient != nil {
		ttl = redisrepo.NewCodeCache(f.redisClient, f.config.Redis.KeyPrefix)
	}

	opts := []otpcode.Option{
		otpcode.WithSMSCodeLength(f.config.SMS.CodeLength),
	}
	if f.config.SMS.FallbackEnabled {
		opts = append(opts, otpcode.WithFallback(otpcode.NewMemoryStore()))
		util.Warn("in-process sms code fallback enabled, codes will not survive restarts")
	}
	return otpcode.NewManager(durable, ttl, opts...)
}

func (f *Factory) UserRepository() *scylla.UserRepository {
	if f.userRepository == nil {
		f.userRepository = scylla.NewUserRepository(f.scyllaClient, f.bucketingManager)
	}
	return f.userRepository
}

func (f *Factory) UserIndex() *es.UserIndex {
	if f.userIndex == nil {
		f.userIndex = es.NewUserIndex(f.esClient, f.config.Elasticsearch.UserIndex)
	}
	return f.userIndex
}

func (f *Factory) AuditRecorder() *audit.Recorder {
	if f.auditRecorder == nil {
		f.auditRecorder = audit.NewRecorder(f.clickhouseClient, f.kafkaProducer)
	}
	return f.auditRecorder
}

// disabledSMSSender stands in when no SNS client could be built.
// Codes are still issued and verifiable; delivery reports failure.
type disabledSMSSender struct{}

func (disabledSMSSender) SendCode(context.Context, string, string) (string, error) {
	return "", fmt.Errorf("sms delivery is not configured")
}

func (f *Factory) ServiceFactory() *service.ServiceFactory {
	if f.serviceFactory == nil {
		var smsSender service.SMSSender = disabledSMSSender{}
		if f.snsClient != nil {
			smsSender = f.snsClient
		}
		f.serviceFactory = service.NewServiceFactory(
			f.UserRepository(),
			f.ldapClient,
			f.codeManager,
			smsSender,
			email.NewClient(f.config),
			f.encryptionManager,
			f.hasher,
			f.UserIndex(),
			f.UserIndex(),
			f.AuditRecorder(),
			f.config,
		)
	}
	return f.serviceFactory
}

func (f *Factory) HealthCheck(ctx context.Context) map[string]error {
	healthErrors := make(map[string]error)

	if f.redisClient != nil {
		if err := f.redisClient.HealthCheck(ctx); err != nil {
			healthErrors["redis"] = err
		}
	} else {
		healthErrors["redis"] = fmt.Errorf("redis client not initialized")
	}

	if f.scyllaClient != nil {
		if err := f.scyllaClient.HealthCheck(); err != nil {
			healthErrors["scylla"] = err
		}
	} else {
		healthErrors["scylla"] = fmt.Errorf("scylla client not initialized")
	}

	if f.ldapClient != nil {
		if err := f.ldapClient.HealthCheck(); err != nil {
			healthErrors["ldap"] = err
		}
	} else {
		healthErrors["ldap"] = fmt.Errorf("ldap client not initialized")
	}

	if f.esClient != nil {
		if err := f.esClient.HealthCheck(ctx); err != nil {
			healthErrors["elasticsearch"] = err
		}
	}
	if f.clickhouseClient != nil {
		if err := f.clickhouseClient.HealthCheck(ctx); err != nil {
			healthErrors["clickhouse"] = err
		}
	}
	if f.kafkaProducer != nil {
		if err := f.kafkaProducer.HealthCheck(ctx); err != nil {
			healthErrors["kafka"] = err
		}
	}

	return healthErrors
}

// IsHealthy reports whether the critical backends are reachable. The
// analytics backends degrade the service but do not fail readiness.
func (f *Factory) IsHealthy(ctx context.Context) bool {
	healthErrors := f.HealthCheck(ctx)
	delete(healthErrors, "kafka")
	delete(healthErrors, "elasticsearch")
	delete(healthErrors, "clickhouse")
	return len(healthErrors) == 0
}

func (f *Factory) Close() error {
	f.closeOnce.Do(func() {
		close(f.closed)
		util.Info("shutting down factory")

		if f.clickhouseClient != nil {
			if err := f.clickhouseClient.Close(); err != nil {
				util.Error("failed to close clickhouse client", zap.Error(err))
			}
		}
		if f.esClient != nil {
			f.esClient.Close()
		}
		if f.kafkaProducer != nil {
			if err := f.kafkaProducer.Close(); err != nil {
				util.Error("failed to close kafka producer", zap.Error(err))
			}
		}
		if f.scyllaClient != nil {
			f.scyllaClient.Close()
		}
		if f.redisClient != nil {
			if err := f.redisClient.Close(); err != nil {
				util.Error("failed to close redis client", zap.Error(err))
			}
		}
		if f.encryptionManager != nil {
			f.encryptionManager.ClearCache()
		}

		util.Sync()
		util.Info("factory shutdown completed")
	})
	return nil
}

func (f *Factory) WaitForClose() {
	<-f.closed
}

func (f *Factory) Config() *config.Config {
	return f.config
}

func (f *Factory) TLSManager() *tls.Manager {
	return f.tlsManager
}
