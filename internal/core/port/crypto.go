package port

// PasswordHasher hashes and verifies secrets using the configured algorithm.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password string, encoded string) (bool, error)
}

// PasswordPolicyValidator enforces password strength requirements. userInputs
// (phone, email, name) are penalised by the strength estimator.
type PasswordPolicyValidator interface {
	Validate(password string, userInputs ...string) error
}
