package postgres

// Repositories groups concrete PostgreSQL repository implementations.
type Repositories struct {
	Accounts *AccountRepository
	Tokens   *TokenRepository
}

// NewRepositories wires all repositories backed by the provided pool.
func NewRepositories(db pgPool) *Repositories {
	return &Repositories{
		Accounts: NewAccountRepository(db),
		Tokens:   NewTokenRepository(db),
	}
}
