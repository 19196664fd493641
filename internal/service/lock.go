package service

import "sync"

// keyedMutex - эксклюзивная блокировка по ключу (gateway reference code).
// Сериализует цикл "прочитать состояние -> смаппить -> записать" для одной
// транзакции: webhook и активный poll могут прийти одновременно, и без
// блокировки оба увидят pending и попытаются записать конфликтующие
// терминальные состояния. Блокировки между разными транзакциями независимы.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{
		locks: make(map[string]*keyedLock),
	}
}

// Lock захватывает блокировку для ключа, при необходимости создавая её
func (k *keyedMutex) Lock(key string) {
	k.mu.Lock()
	entry, exists := k.locks[key]
	if !exists {
		entry = &keyedLock{}
		k.locks[key] = entry
	}
	entry.refs++
	k.mu.Unlock()

	entry.mu.Lock()
}

// Unlock освобождает блокировку и удаляет её, когда больше никто не ждёт
func (k *keyedMutex) Unlock(key string) {
	k.mu.Lock()
	entry := k.locks[key]
	entry.refs--
	if entry.refs == 0 {
		delete(k.locks, key)
	}
	k.mu.Unlock()

	entry.mu.Unlock()
}
