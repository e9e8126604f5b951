package client

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-ldap/ldap/v3"
	"go.uber.org/zap"

	"mfa-service/internal/config"
	"mfa-service/internal/util"
)

var ErrInvalidCredentials = errors.New("invalid username or password")

// LDAPClient talks to the directory that owns primary credentials.
// Connections are dialed per operation; the directory server is the
// connection pool.
type LDAPClient struct {
	config *config.LDAPConfig
}

// NewLDAPClient probes the directory once. A failed probe is returned
// alongside a usable client: connections are dialed per operation, so
// the directory coming up later heals the client without a restart.
func NewLDAPClient(cfg *config.Config) (*LDAPClient, error) {
	c := &LDAPClient{config: &cfg.LDAP}

	conn, err := c.dial()
	if err != nil {
		return c, fmt.Errorf("failed to connect to LDAP: %w", err)
	}
	conn.Close()

	util.Info("LDAP client initialized",
		zap.String("host", cfg.LDAP.Host),
		zap.Int("port", cfg.LDAP.Port),
		zap.Bool("ssl", cfg.LDAP.UseSSL))
	return c, nil
}

func (c *LDAPClient) dial() (*ldap.Conn, error) {
	scheme := "ldap"
	if c.config.UseSSL {
		scheme = "ldaps"
	}
	return ldap.DialURL(fmt.Sprintf("%s://%s:%d", scheme, c.config.Host, c.config.Port))
}

func (c *LDAPClient) dialAdmin() (*ldap.Conn, error) {
	conn, err := c.dial()
	if err != nil {
		return nil, err
	}
	if err := conn.Bind(c.config.AdminDN, c.config.AdminPassword); err != nil {
		conn.Close()
		return nil, fmt.Errorf("admin bind failed: %w", err)
	}
	return conn, nil
}

func (c *LDAPClient) userSearchBase() string {
	base := c.config.UserSearchBase
	if !strings.HasSuffix(base, c.config.BaseDN) {
		base = base + "," + c.config.BaseDN
	}
	return base
}

func (c *LDAPClient) userDN(username string) string {
	return fmt.Sprintf("uid=%s,%s", ldap.EscapeDN(username), c.userSearchBase())
}

// Authenticate performs a bind as the user. ErrInvalidCredentials
// covers both unknown users and wrong passwords.
func (c *LDAPClient) Authenticate(username, password string) error {
	if password == "" {
		return ErrInvalidCredentials
	}

	conn, err := c.dial()
	if err != nil {
		return fmt.Errorf("ldap connect failed: %w", err)
	}
	defer conn.Close()

	if err := conn.Bind(c.userDN(username), password); err != nil {
		if ldap.IsErrorWithCode(err, ldap.LDAPResultInvalidCredentials) ||
			ldap.IsErrorWithCode(err, ldap.LDAPResultNoSuchObject) {
			util.Warn("ldap authentication failed", zap.String("username", username))
			return ErrInvalidCredentials
		}
		return fmt.Errorf("ldap bind failed: %w", err)
	}
	return nil
}

func (c *LDAPClient) searchUser(conn *ldap.Conn, username string, attributes ...string) (*ldap.Entry, error) {
	filter := fmt.Sprintf(c.config.UserSearchFilter, ldap.EscapeFilter(username))
	req := ldap.NewSearchRequest(
		c.userSearchBase(),
		ldap.ScopeWholeSubtree, ldap.NeverDerefAliases, 0, 0, false,
		filter,
		attributes,
		nil,
	)
	res, err := conn.Search(req)
	if err != nil {
		return nil, err
	}
	if len(res.Entries) == 0 {
		return nil, nil
	}
	return res.Entries[0], nil
}

func (c *LDAPClient) UserExists(username string) (bool, error) {
	conn, err := c.dialAdmin()
	if err != nil {
		return false, err
	}
	defer conn.Close()

	entry, err := c.searchUser(conn, username, "uid")
	if err != nil {
		return false, fmt.Errorf("ldap search failed: %w", err)
	}
	return entry != nil, nil
}

// IsAdmin checks membership of the configured admin group.
func (c *LDAPClient) IsAdmin(username string) (bool, error) {
	conn, err := c.dialAdmin()
	if err != nil {
		return false, err
	}
	defer conn.Close()

	groupDN := fmt.Sprintf("cn=%s,ou=groups,%s", ldap.EscapeDN(c.config.AdminGroupCN), c.config.BaseDN)
	filter := fmt.Sprintf("(|(member=%s)(memberUid=%s))",
		ldap.EscapeFilter(c.userDN(username)), ldap.EscapeFilter(username))
	req := ldap.NewSearchRequest(
		groupDN,
		ldap.ScopeBaseObject, ldap.NeverDerefAliases, 0, 0, false,
		filter,
		[]string{"cn"},
		nil,
	)
	res, err := conn.Search(req)
	if err != nil {
		if ldap.IsErrorWithCode(err, ldap.LDAPResultNoSuchObject) {
			return false, nil
		}
		return false, fmt.Errorf("ldap group search failed: %w", err)
	}
	return len(res.Entries) > 0, nil
}

// CreateUser adds a directory account during admin activation.
func (c *LDAPClient) CreateUser(username, password, firstName, lastName, email string) error {
	conn, err := c.dialAdmin()
	if err != nil {
		return err
	}
	defer conn.Close()

	req := ldap.NewAddRequest(c.userDN(username), nil)
	req.Attribute("objectClass", []string{"inetOrgPerson", "organizationalPerson", "person", "top"})
	req.Attribute("uid", []string{username})
	req.Attribute("cn", []string{strings.TrimSpace(firstName + " " + lastName)})
	req.Attribute("sn", []string{lastName})
	req.Attribute("givenName", []string{firstName})
	req.Attribute("mail", []string{email})
	req.Attribute("userPassword", []string{password})

	if err := conn.Add(req); err != nil {
		if ldap.IsErrorWithCode(err, ldap.LDAPResultEntryAlreadyExists) {
			return fmt.Errorf("ldap user %s already exists", username)
		}
		return fmt.Errorf("ldap add failed: %w", err)
	}

	util.Info("ldap user created", zap.String("username", username))
	return nil
}

// HealthCheck verifies directory reachability with an admin bind.
func (c *LDAPClient) HealthCheck() error {
	conn, err := c.dialAdmin()
	if err != nil {
		return err
	}
	conn.Close()
	return nil
}
