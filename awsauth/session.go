package awsauth

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/google/uuid"

	"github.com/lewisbuilds/AWS-FinOps-Dashboard/config"
	"github.com/lewisbuilds/AWS-FinOps-Dashboard/errs"
)

// expiryBuffer is the safety margin before session expiry. A session within
// this buffer of expiring is never handed to a caller; it is replaced first.
const expiryBuffer = 5 * time.Minute

// assumeRoleDuration is the requested lifetime for assumed-role credentials.
const assumeRoleDuration = int32(3600)

// Strategy identifies how a session's credentials were obtained.
type Strategy string

const (
	StrategyAssumeRole   Strategy = "assume_role"
	StrategyStaticKeys   Strategy = "static_keys"
	StrategyProfile      Strategy = "profile"
	StrategyDefaultChain Strategy = "default_chain"
	StrategyNone         Strategy = "none"
)

// Session is an authenticated AWS session. ExpiresAt is zero for sessions
// that never expire (static keys, profiles, the default chain).
type Session struct {
	Config    aws.Config
	Strategy  Strategy
	ExpiresAt time.Time
	AccountID string
	ARN       string
}

// Expired reports whether the session is unusable at time now, applying the
// safety buffer.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !s.ExpiresAt.After(now.Add(expiryBuffer))
}

// Diagnosis is a side-effect-free report of the credential configuration.
type Diagnosis struct {
	Strategy           Strategy `json:"strategy"`
	HasBaseCredentials bool     `json:"has_base_credentials"`
	HasStaticKeys      bool     `json:"has_static_keys"`
	RemediationSteps   []string `json:"remediation_steps,omitempty"`
}

// STSAPI is the subset of the STS client used by the manager.
type STSAPI interface {
	AssumeRole(ctx context.Context, params *sts.AssumeRoleInput, optFns ...func(*sts.Options)) (*sts.AssumeRoleOutput, error)
	GetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error)
}

// Manager resolves and caches one authenticated session for the process.
//
// Resolution priority: explicit role assumption, static access keys, named
// profile, default provider chain. The cached session is replaced
// transparently once it enters the expiry buffer.
type Manager struct {
	settings *config.Settings
	logger   *slog.Logger

	mu      sync.Mutex
	current *Session

	// Hooks for tests.
	loadConfig func(ctx context.Context, optFns ...func(*awsconfig.LoadOptions) error) (aws.Config, error)
	newSTS     func(cfg aws.Config) STSAPI
	now        func() time.Time
}

// NewManager creates a session manager for the given settings.
func NewManager(settings *config.Settings, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		settings:   settings,
		logger:     logger.With("component", "awsauth"),
		loadConfig: awsconfig.LoadDefaultConfig,
		newSTS:     func(cfg aws.Config) STSAPI { return sts.NewFromConfig(cfg) },
		now:        time.Now,
	}
}

// Strategy returns the strategy the manager will use, from configuration
// alone, without touching the network.
func (m *Manager) Strategy() Strategy {
	switch {
	case m.settings.AWS.RoleARN != "":
		return StrategyAssumeRole
	case m.settings.HasStaticKeys():
		return StrategyStaticKeys
	case m.settings.AWS.Profile != "":
		return StrategyProfile
	default:
		return StrategyDefaultChain
	}
}

// GetSession returns a valid session, establishing or refreshing one as
// needed. Establishment performs one identity-validation call; its failure
// is classified and returned as a typed error.
func (m *Manager) GetSession(ctx context.Context) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil && !m.current.Expired(m.now()) {
		return m.current, nil
	}

	session, err := m.establish(ctx)
	if err != nil {
		return nil, err
	}
	m.current = session
	m.logger.Info("session established",
		"strategy", string(session.Strategy),
		"account", session.AccountID,
		"expires_at", session.ExpiresAt)
	return session, nil
}

// Invalidate drops the cached session so the next GetSession re-resolves.
func (m *Manager) Invalidate() {
	m.mu.Lock()
	m.current = nil
	m.mu.Unlock()
}

func (m *Manager) establish(ctx context.Context) (*Session, error) {
	strategy := m.Strategy()

	var (
		session *Session
		err     error
	)
	switch strategy {
	case StrategyAssumeRole:
		session, err = m.establishAssumeRole(ctx)
	case StrategyStaticKeys:
		session, err = m.establishStatic(ctx)
	case StrategyProfile:
		session, err = m.establishProfile(ctx)
	default:
		session, err = m.establishDefaultChain(ctx)
	}
	if err != nil {
		return nil, err
	}

	if err := m.validateIdentity(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

func (m *Manager) establishAssumeRole(ctx context.Context) (*Session, error) {
	baseCfg, err := m.loadBase(ctx)
	if err != nil {
		return nil, err
	}

	// Pre-flight: confirm base credentials resolve before the STS round
	// trip, so a misconfiguration fails with remediation instead of a
	// guaranteed STS rejection.
	if _, err := baseCfg.Credentials.Retrieve(ctx); err != nil {
		return nil, errs.Wrap(err, errs.KindAuth,
			"no base credentials available for role assumption",
			"role_arn", m.settings.AWS.RoleARN,
			"remediation", "configure static keys, a profile, or instance credentials before setting role_arn")
	}

	client := m.newSTS(baseCfg)
	sessionName := "finops-" + uuid.NewString()
	out, err := client.AssumeRole(ctx, &sts.AssumeRoleInput{
		RoleArn:         aws.String(m.settings.AWS.RoleARN),
		RoleSessionName: aws.String(sessionName),
		DurationSeconds: aws.Int32(assumeRoleDuration),
	})
	if err != nil {
		return nil, Classify(err, "sts.AssumeRole", "role_arn", m.settings.AWS.RoleARN)
	}

	cfg, err := m.loadConfig(ctx,
		awsconfig.WithRegion(m.settings.AWS.Region),
		awsconfig.WithHTTPClient(m.httpClient()),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			aws.ToString(out.Credentials.AccessKeyId),
			aws.ToString(out.Credentials.SecretAccessKey),
			aws.ToString(out.Credentials.SessionToken),
		)),
	)
	if err != nil {
		return nil, errs.Wrap(err, errs.KindAuth, "failed to build assumed-role config",
			"role_arn", m.settings.AWS.RoleARN)
	}

	return &Session{
		Config:    cfg,
		Strategy:  StrategyAssumeRole,
		ExpiresAt: aws.ToTime(out.Credentials.Expiration),
	}, nil
}

func (m *Manager) establishStatic(ctx context.Context) (*Session, error) {
	cfg, err := m.loadConfig(ctx,
		awsconfig.WithRegion(m.settings.AWS.Region),
		awsconfig.WithHTTPClient(m.httpClient()),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			m.settings.AWS.AccessKeyID,
			m.settings.AWS.SecretAccessKey,
			m.settings.AWS.SessionToken,
		)),
	)
	if err != nil {
		return nil, errs.Wrap(err, errs.KindAuth, "failed to build static-key config")
	}
	return &Session{Config: cfg, Strategy: StrategyStaticKeys}, nil
}

func (m *Manager) establishProfile(ctx context.Context) (*Session, error) {
	cfg, err := m.loadConfig(ctx,
		awsconfig.WithRegion(m.settings.AWS.Region),
		awsconfig.WithHTTPClient(m.httpClient()),
		awsconfig.WithSharedConfigProfile(m.settings.AWS.Profile),
	)
	if err != nil {
		return nil, errs.Wrap(err, errs.KindAuth, "failed to load profile",
			"profile", m.settings.AWS.Profile,
			"remediation", "check that the profile exists in ~/.aws/credentials")
	}
	return &Session{Config: cfg, Strategy: StrategyProfile}, nil
}

func (m *Manager) establishDefaultChain(ctx context.Context) (*Session, error) {
	cfg, err := m.loadConfig(ctx,
		awsconfig.WithRegion(m.settings.AWS.Region),
		awsconfig.WithHTTPClient(m.httpClient()),
	)
	if err != nil {
		return nil, errs.Wrap(err, errs.KindAuth, "default credential chain failed",
			"remediation", "set AWS_ACCESS_KEY_ID/AWS_SECRET_ACCESS_KEY, a profile, or instance credentials")
	}
	return &Session{Config: cfg, Strategy: StrategyDefaultChain}, nil
}

func (m *Manager) loadBase(ctx context.Context) (aws.Config, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(m.settings.AWS.Region),
		awsconfig.WithHTTPClient(m.httpClient()),
	}
	if m.settings.HasStaticKeys() {
		opts = append(opts, awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			m.settings.AWS.AccessKeyID,
			m.settings.AWS.SecretAccessKey,
			m.settings.AWS.SessionToken,
		)))
	} else if m.settings.AWS.Profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(m.settings.AWS.Profile))
	}

	cfg, err := m.loadConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, errs.Wrap(err, errs.KindAuth, "failed to load base config")
	}
	return cfg, nil
}

// validateIdentity performs the one identity call a fresh session gets,
// filling in the caller account and ARN.
func (m *Manager) validateIdentity(ctx context.Context, session *Session) error {
	client := m.newSTS(session.Config)
	out, err := client.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return Classify(err, "sts.GetCallerIdentity", "strategy", string(session.Strategy))
	}
	session.AccountID = aws.ToString(out.Account)
	session.ARN = aws.ToString(out.Arn)
	return nil
}

// AssumeAccountRole assumes the member role in the target account using the
// current session's credentials. The returned session carries only the
// assumed-role credentials; it is not cached by the manager.
func (m *Manager) AssumeAccountRole(ctx context.Context, accountID, roleName string) (*Session, error) {
	base, err := m.GetSession(ctx)
	if err != nil {
		return nil, err
	}

	roleArn := fmt.Sprintf("arn:aws:iam::%s:role/%s", accountID, roleName)
	client := m.newSTS(base.Config)
	out, err := client.AssumeRole(ctx, &sts.AssumeRoleInput{
		RoleArn:         aws.String(roleArn),
		RoleSessionName: aws.String("finops-" + uuid.NewString()),
		DurationSeconds: aws.Int32(assumeRoleDuration),
	})
	if err != nil {
		return nil, Classify(err, "sts.AssumeRole", "account", accountID, "role_arn", roleArn)
	}

	cfg, err := m.loadConfig(ctx,
		awsconfig.WithRegion(m.settings.AWS.Region),
		awsconfig.WithHTTPClient(m.httpClient()),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			aws.ToString(out.Credentials.AccessKeyId),
			aws.ToString(out.Credentials.SecretAccessKey),
			aws.ToString(out.Credentials.SessionToken),
		)),
	)
	if err != nil {
		return nil, errs.Wrap(err, errs.KindAuth, "failed to build member-role config",
			"account", accountID)
	}

	return &Session{
		Config:    cfg,
		Strategy:  StrategyAssumeRole,
		ExpiresAt: aws.ToTime(out.Credentials.Expiration),
		AccountID: accountID,
		ARN:       roleArn,
	}, nil
}

// Diagnose reports the credential configuration without raising. The base
// credential probe is local configuration resolution, not an API call.
func (m *Manager) Diagnose(ctx context.Context) Diagnosis {
	d := Diagnosis{
		Strategy:      m.Strategy(),
		HasStaticKeys: m.settings.HasStaticKeys(),
	}

	if cfg, err := m.loadBase(ctx); err == nil {
		if _, err := cfg.Credentials.Retrieve(ctx); err == nil {
			d.HasBaseCredentials = true
		}
	}

	if !d.HasBaseCredentials {
		d.RemediationSteps = append(d.RemediationSteps,
			"set AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY, or configure a profile in ~/.aws/credentials")
	}
	if d.Strategy == StrategyAssumeRole && !d.HasBaseCredentials {
		d.RemediationSteps = append(d.RemediationSteps,
			"role assumption requires working base credentials before sts:AssumeRole is attempted")
	}
	if m.settings.AWS.Region == "" {
		d.RemediationSteps = append(d.RemediationSteps,
			"set aws.region or the AWS_REGION environment variable")
	}
	return d
}

// httpClient bounds every outbound call with the configured API timeout.
func (m *Manager) httpClient() *http.Client {
	return &http.Client{Timeout: m.settings.Resilience.APITimeout()}
}
