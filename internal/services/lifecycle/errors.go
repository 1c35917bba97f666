package lifecycle

import "errors"

// Ошибки валидации, возвращаемые движком жизненного цикла.
// Они адресованы пользователю и никогда не повторяются автоматически.
var (
	// ErrTrialAlreadyUsed — пользователь уже использовал пробный период.
	ErrTrialAlreadyUsed = errors.New("trial already used")
	// ErrNoActiveSubscription — у пользователя нет подписки, которую можно продлить.
	ErrNoActiveSubscription = errors.New("no active subscription")
	// ErrPromoInvalid — промокод не существует или деактивирован.
	ErrPromoInvalid = errors.New("promo code is invalid")
	// ErrPromoExpired — срок действия промокода истёк.
	ErrPromoExpired = errors.New("promo code is expired")
	// ErrPromoExhausted — лимит активаций промокода исчерпан.
	ErrPromoExhausted = errors.New("promo code usage limit reached")
	// ErrPromoAlreadyUsed — пользователь уже активировал этот промокод.
	ErrPromoAlreadyUsed = errors.New("promo code already used")
)
