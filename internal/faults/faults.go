package faults

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/lib/pq"
	"gorm.io/gorm"
)

// Kind задает класс отказа: от него зависит, можно ли повторять операцию
type Kind string

const (
	KindNetwork  Kind = "network"  // Сетевой сбой, операцию можно повторить
	KindBusiness Kind = "business" // Отказ бизнес-правила, повтор бесполезен
	KindSchema   Kind = "schema"   // Ошибка схемы или доступа, требуется вмешательство оператора
	KindTimeout  Kind = "timeout"  // Превышен тайм-аут, состояние не изменено
)

// Коды ошибок PostgreSQL, которые трактуются как проблемы схемы/доступа
const (
	pgUndefinedTable        = "42P01"
	pgInsufficientPrivilege = "42501"
	pgUndefinedColumn       = "42703"
)

// Fault описывает отказ нижнего слоя в структурированном виде.
// Слои ridelock и projection никогда не пробрасывают необработанные ошибки
// выше своей границы — только Fault.
type Fault struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
	cause   error
}

func (f *Fault) Error() string {
	return f.Message
}

func (f *Fault) Unwrap() error {
	return f.cause
}

// Retryable сообщает, имеет ли смысл повторять операцию
func (f *Fault) Retryable() bool {
	return f.Kind == KindNetwork
}

// Business создает отказ бизнес-правила; сообщение отдается пользователю дословно
func Business(message string) *Fault {
	return &Fault{Kind: KindBusiness, Message: message}
}

// Network создает сетевой отказ
func Network(message string, cause error) *Fault {
	return &Fault{Kind: KindNetwork, Message: message, cause: cause}
}

// Schema создает терминальный отказ схемы/доступа
func Schema(message string, cause error) *Fault {
	return &Fault{Kind: KindSchema, Message: message, cause: cause}
}

// Timeout создает отказ по тайм-ауту
func Timeout(message string, cause error) *Fault {
	return &Fault{Kind: KindTimeout, Message: message, cause: cause}
}

// Classify переводит произвольную ошибку драйвера или транспорта в Fault.
// Разделение важно: сетевые сбои повторяются, отказы схемы — нет.
func Classify(err error) *Fault {
	if err == nil {
		return nil
	}

	var f *Fault
	if errors.As(err, &f) {
		return f
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return Timeout("Превышено время ожидания запроса", err)
	}
	if errors.Is(err, context.Canceled) {
		return Timeout("Запрос отменен", err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return Timeout("Превышено время ожидания сети", err)
		}
		return Network("Сеть недоступна", err)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch string(pqErr.Code) {
		case pgUndefinedTable:
			return Schema("Таблица не найдена, требуется миграция базы данных", err)
		case pgUndefinedColumn:
			return Schema("Колонка не найдена, схема базы данных устарела", err)
		case pgInsufficientPrivilege:
			return Schema("Доступ к таблице запрещен", err)
		}
	}

	// gorm оборачивает ошибки драйвера, проверяем текст на известные классы
	msg := err.Error()
	if strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "no such host") {
		return Network("Сеть недоступна", err)
	}
	if strings.Contains(msg, "does not exist") && strings.Contains(msg, "relation") {
		return Schema("Таблица не найдена, требуется миграция базы данных", err)
	}
	if strings.Contains(msg, "permission denied") {
		return Schema("Доступ к таблице запрещен", err)
	}
	if errors.Is(err, gorm.ErrInvalidDB) {
		return Schema("Некорректное подключение к базе данных", err)
	}

	// Неизвестные ошибки трактуем как сетевые: повтор безопаснее, чем потеря данных
	return Network("Непредвиденная ошибка при обращении к хранилищу", err)
}

// IsNotFound сообщает, что запись отсутствует (это не отказ, а пустой результат)
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
