package usecase

import "errors"

// ErrInvalidCommand оборачивает ошибки валидации входных параметров
var ErrInvalidCommand = errors.New("invalid command")
