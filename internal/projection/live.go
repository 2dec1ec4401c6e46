package projection

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"rydin-backend/internal/faults"
	"rydin-backend/internal/models"
	"rydin-backend/internal/realtime"
)

// State описывает состояние живой коллекции. Pending отличим от пустого
// результата: без установленной сессии коллекция еще не загружалась.
type State string

const (
	StatePending State = "pending"
	StateReady   State = "ready"
	StateFailed  State = "failed"
)

// Политика повтора первоначальной выборки: только сетевые сбои,
// линейная задержка между попытками (1с, 2с)
const (
	fetchAttempts = 3
	backoffStep   = time.Second
)

// Feed выдает подписки на события изменений
type Feed interface {
	Subscribe(table string, rideID uint) *realtime.Subscription
}

// liveList — переиспользуемая живая коллекция: одна реализация
// слияния по идентификатору для всех типов сущностей
type liveList[R any] struct {
	feed     Feed
	table    string
	rideID   uint
	viewerID uint
	prepend  bool
	sleep    func(time.Duration)

	fetchAll func(ctx context.Context) ([]R, error)
	fetchOne func(ctx context.Context, id uint) (*R, error)
	idOf     func(R) uint

	mu    sync.RWMutex
	state State
	fault *faults.Fault
	items []R
	sub   *realtime.Subscription
}

// Start выполняет первоначальную выборку и открывает подписку на события.
// Сетевые сбои повторяются с линейной задержкой, прочие отказы терминальны.
func (l *liveList[R]) Start(ctx context.Context) *faults.Fault {
	// Без установленной сессии коллекция не обращается к хранилищу:
	// состояние pending отличимо от пустого результата
	if l.viewerID == 0 {
		return faults.Business("Сессия не установлена, список недоступен")
	}

	// Подписка открывается до выборки, чтобы не потерять события между ними
	sub := l.feed.Subscribe(l.table, l.rideID)

	var items []R
	var lastFault *faults.Fault

	for attempt := 1; attempt <= fetchAttempts; attempt++ {
		fetched, err := l.fetchAll(ctx)
		if err == nil {
			items = fetched
			lastFault = nil
			break
		}

		lastFault = faults.Classify(err)
		if !lastFault.Retryable() {
			// Отказ бизнес-правила или схемы: повтор бесполезен
			break
		}
		if attempt < fetchAttempts {
			delay := time.Duration(attempt) * backoffStep
			log.Printf("Выборка %s не удалась (попытка %d из %d), повтор через %v: %s",
				l.table, attempt, fetchAttempts, delay, lastFault.Message)
			l.sleep(delay)
		}
	}

	if lastFault != nil {
		sub.Close()
		l.mu.Lock()
		l.state = StateFailed
		l.fault = lastFault
		l.mu.Unlock()
		log.Printf("Выборка %s завершилась отказом: %s (%s)",
			l.table, lastFault.Message, lastFault.Kind)
		return lastFault
	}

	l.mu.Lock()
	l.items = items
	l.state = StateReady
	l.sub = sub
	l.mu.Unlock()

	go l.applyLoop(ctx, sub)
	return nil
}

// applyLoop накатывает события на локальный список до закрытия подписки.
// Непредвиденные сбои не выходят за границу цикла.
func (l *liveList[R]) applyLoop(ctx context.Context, sub *realtime.Subscription) {
	for event := range sub.Events {
		l.apply(ctx, event)
	}
}

func (l *liveList[R]) apply(ctx context.Context, event realtime.ChangeEvent) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Непредвиденная ошибка при применении события %s к %s: %v",
				event.EventType, l.table, r)
		}
	}()

	switch event.EventType {
	case realtime.EventInsert:
		l.applyInsert(ctx, event)
	case realtime.EventUpdate:
		l.applyUpdate(event)
	case realtime.EventDelete:
		l.applyDelete(event)
	}
}

func (l *liveList[R]) applyInsert(ctx context.Context, event realtime.ChangeEvent) {
	id := payloadID(event.New)
	if id == 0 {
		return
	}

	// Повторная доставка того же события не создает дубликата
	if l.contains(id) {
		return
	}

	// Строка загружается целиком вместе с профилем до добавления в список
	row, err := l.fetchOne(ctx, id)
	if err != nil {
		f := faults.Classify(err)
		log.Printf("Не удалось загрузить новую строку %s id=%d: %s", l.table, id, f.Message)
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	// Повторная проверка: событие могли применить конкурентно
	for _, item := range l.items {
		if l.idOf(item) == id {
			return
		}
	}
	if l.prepend {
		l.items = append([]R{*row}, l.items...)
	} else {
		l.items = append(l.items, *row)
	}
}

func (l *liveList[R]) applyUpdate(event realtime.ChangeEvent) {
	id := payloadID(event.New)
	if id == 0 {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.items {
		if l.idOf(l.items[i]) != id {
			continue
		}
		// Пришедшие поля накладываются на локальную запись: последнее
		// обновление по строке выигрывает, глобальный порядок не гарантируется
		if err := mergeInto(&l.items[i], event.New); err != nil {
			log.Printf("Не удалось слить обновление строки %s id=%d: %v", l.table, id, err)
		}
		return
	}
	// Обновление неизвестной строки игнорируется
}

func (l *liveList[R]) applyDelete(event realtime.ChangeEvent) {
	id := payloadID(event.Old)
	if id == 0 {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.items {
		if l.idOf(l.items[i]) == id {
			l.items = append(l.items[:i], l.items[i+1:]...)
			return
		}
	}
	// Удаление отсутствующей строки — не ошибка
}

func (l *liveList[R]) contains(id uint) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, item := range l.items {
		if l.idOf(item) == id {
			return true
		}
	}
	return false
}

// Snapshot возвращает копию текущего списка
func (l *liveList[R]) Snapshot() []R {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]R, len(l.items))
	copy(out, l.items)
	return out
}

// State возвращает состояние коллекции и последний терминальный отказ
func (l *liveList[R]) State() (State, *faults.Fault) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state, l.fault
}

// Close освобождает подписку; без этого канал событий утекает
// при уходе потребителя
func (l *liveList[R]) Close() {
	l.mu.Lock()
	sub := l.sub
	l.sub = nil
	l.mu.Unlock()
	if sub != nil {
		sub.Close()
	}
}

// payloadID извлекает идентификатор строки из полезной нагрузки события.
// Нагрузка может быть структурой (внутри процесса) или картой (из Redis).
func payloadID(payload interface{}) uint {
	if payload == nil {
		return 0
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return 0
	}
	var row struct {
		ID uint `json:"id"`
	}
	if err := json.Unmarshal(data, &row); err != nil {
		return 0
	}
	return row.ID
}

// mergeInto накладывает поля полезной нагрузки на существующую запись
func mergeInto[R any](item *R, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, item)
}

// RideList — живой список поездок, обогащенный профилями хостов
type RideList struct {
	*liveList[models.RideResponse]
}

// NewRideList создает живой список поездок для аутентифицированного
// пользователя. viewerID == 0 означает отсутствие сессии: коллекция
// остается в состоянии pending и не обращается к хранилищу.
func NewRideList(source Source, feed Feed, filter RideFilter, viewerID uint) *RideList {
	inner := &liveList[models.RideResponse]{
		feed:     feed,
		table:    realtime.TableRides,
		viewerID: viewerID,
		prepend:  true, // основной вид — в обратном хронологическом порядке
		sleep:    time.Sleep,
		state:    StatePending,
		idOf:     func(r models.RideResponse) uint { return r.ID },
	}

	inner.fetchAll = func(ctx context.Context) ([]models.RideResponse, error) {
		rides, err := source.FetchRides(ctx, filter)
		if err != nil {
			return nil, err
		}

		// Профили хостов загружаются одним пакетным запросом
		idSet := make(map[uint]bool, len(rides))
		ids := make([]uint, 0, len(rides))
		for _, ride := range rides {
			if !idSet[ride.HostID] {
				idSet[ride.HostID] = true
				ids = append(ids, ride.HostID)
			}
		}
		profiles, err := source.FetchProfiles(ctx, ids)
		if err != nil {
			return nil, err
		}

		out := make([]models.RideResponse, 0, len(rides))
		for _, ride := range rides {
			out = append(out, models.NewRideResponse(ride, profiles[ride.HostID]))
		}
		return out, nil
	}

	inner.fetchOne = func(ctx context.Context, id uint) (*models.RideResponse, error) {
		ride, err := source.FetchRide(ctx, id)
		if err != nil {
			return nil, err
		}
		profiles, err := source.FetchProfiles(ctx, []uint{ride.HostID})
		if err != nil {
			return nil, err
		}
		resp := models.NewRideResponse(*ride, profiles[ride.HostID])
		return &resp, nil
	}

	return &RideList{liveList: inner}
}

// MemberList — живой список участников одной поездки с их профилями
type MemberList struct {
	*liveList[models.RideMemberResponse]
}

func NewMemberList(source Source, feed Feed, rideID, viewerID uint) *MemberList {
	inner := &liveList[models.RideMemberResponse]{
		feed:     feed,
		table:    realtime.TableRideMembers,
		rideID:   rideID,
		viewerID: viewerID,
		sleep:    time.Sleep,
		state:    StatePending,
		idOf:     func(m models.RideMemberResponse) uint { return m.ID },
	}

	inner.fetchAll = func(ctx context.Context) ([]models.RideMemberResponse, error) {
		members, err := source.FetchMembers(ctx, rideID)
		if err != nil {
			return nil, err
		}

		idSet := make(map[uint]bool, len(members))
		ids := make([]uint, 0, len(members))
		for _, member := range members {
			if !idSet[member.UserID] {
				idSet[member.UserID] = true
				ids = append(ids, member.UserID)
			}
		}
		profiles, err := source.FetchProfiles(ctx, ids)
		if err != nil {
			return nil, err
		}

		out := make([]models.RideMemberResponse, 0, len(members))
		for _, member := range members {
			out = append(out, models.NewRideMemberResponse(member, profiles[member.UserID]))
		}
		return out, nil
	}

	inner.fetchOne = func(ctx context.Context, id uint) (*models.RideMemberResponse, error) {
		member, err := source.FetchMember(ctx, id)
		if err != nil {
			return nil, err
		}
		profiles, err := source.FetchProfiles(ctx, []uint{member.UserID})
		if err != nil {
			return nil, err
		}
		resp := models.NewRideMemberResponse(*member, profiles[member.UserID])
		return &resp, nil
	}

	return &MemberList{liveList: inner}
}
