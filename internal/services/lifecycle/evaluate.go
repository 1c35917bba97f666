package lifecycle

import (
	"time"

	"github.com/magabrotheeeer/vpn-shop-core/internal/models"
)

// StatusNone возвращается Evaluate, когда у пользователя нет подписки.
const StatusNone = "none"

// NextExpiry вычисляет новую дату окончания при продлении. Продление
// стыкуется: к не истёкшей подписке дни добавляются к текущей дате окончания,
// к истёкшей — отсчитываются от текущего момента. Дата окончания никогда
// не уменьшается.
func NextExpiry(current, now time.Time, d time.Duration) time.Time {
	if current.After(now) {
		return current.Add(d)
	}
	return now.Add(d)
}

// Evaluate вычисляет эффективный статус подписки на момент now, не меняя
// состояния. Хранимый статус может отставать от реального: фоновая сверка
// работает с задержкой, поэтому истечение определяется по дате, а не по
// хранимому полю.
func Evaluate(sub *models.Subscription, now time.Time, window time.Duration) string {
	if sub == nil {
		return StatusNone
	}
	switch sub.Status {
	case models.StatusRevoked:
		return models.StatusRevoked
	case models.StatusExpired:
		return models.StatusExpired
	}
	if !sub.ExpiresAt.After(now) {
		return models.StatusExpired
	}
	if !sub.ExpiresAt.After(now.Add(window)) {
		return models.StatusExpiringSoon
	}
	return sub.Status
}
