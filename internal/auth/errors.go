package auth

import "errors"

// ErrInvalidCredentials covers unknown users, inactive users and wrong
// passwords alike
var ErrInvalidCredentials = errors.New("invalid username or password")
