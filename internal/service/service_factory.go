package service

import (
	"mfa-service/internal/config"
)

// ServiceFactory builds the service layer from its dependencies and
// hands out singletons.
type ServiceFactory struct {
	users  UserStore
	ldap   Directory
	codes  CodeManager
	sms    SMSSender
	email  EmailSender
	cipher SecretCipher
	hasher PasswordHasher
	index  UserIndexer
	search UserSearcher
	audit  EventRecorder
	config *config.Config

	authService  *AuthService
	adminService *AdminService
}

func NewServiceFactory(
	users UserStore,
	ldap Directory,
	codes CodeManager,
	sms SMSSender,
	email EmailSender,
	cipher SecretCipher,
	hasher PasswordHasher,
	index UserIndexer,
	search UserSearcher,
	audit EventRecorder,
	cfg *config.Config,
) *ServiceFactory {
	return &ServiceFactory{
		users:  users,
		ldap:   ldap,
		codes:  codes,
		sms:    sms,
		email:  email,
		cipher: cipher,
		hasher: hasher,
		index:  index,
		search: search,
		audit:  audit,
		config: cfg,
	}
}

func (f *ServiceFactory) AuthService() *AuthService {
	if f.authService == nil {
		f.authService = NewAuthService(
			f.users, f.ldap, f.codes, f.sms, f.email,
			f.cipher, f.hasher, f.index, f.audit, f.config)
	}
	return f.authService
}

func (f *ServiceFactory) AdminService() *AdminService {
	if f.adminService == nil {
		f.adminService = NewAdminService(
			f.AuthService(), f.users, f.ldap, f.email,
			f.hasher, f.search, f.index, f.audit)
	}
	return f.adminService
}
