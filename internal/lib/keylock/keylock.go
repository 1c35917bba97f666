// Package keylock реализует набор мьютексов, адресуемых строковым ключом.
// Используется для сериализации операций над одной и той же сущностью
// (подпиской, пользователем) внутри процесса: одновременные операции над
// разными ключами не блокируют друг друга.
package keylock

import "sync"

// KeyLock хранит занятые ключи.
type KeyLock struct {
	mu   sync.Mutex
	held map[string]*entry
}

type entry struct {
	ch chan struct{} // закрывается при освобождении
}

// New создает пустой KeyLock.
func New() *KeyLock {
	return &KeyLock{held: make(map[string]*entry)}
}

// Lock блокирует ключ, ожидая его освобождения при необходимости.
func (l *KeyLock) Lock(key string) {
	for {
		l.mu.Lock()
		e, ok := l.held[key]
		if !ok {
			l.held[key] = &entry{ch: make(chan struct{})}
			l.mu.Unlock()
			return
		}
		l.mu.Unlock()
		<-e.ch
	}
}

// TryLock пытается захватить ключ без ожидания.
// Возвращает false, если ключ уже занят.
func (l *KeyLock) TryLock(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[key]; ok {
		return false
	}
	l.held[key] = &entry{ch: make(chan struct{})}
	return true
}

// Unlock освобождает ключ. Вызов для незанятого ключа — ошибка программиста,
// приводит к panic как и у sync.Mutex.
func (l *KeyLock) Unlock(key string) {
	l.mu.Lock()
	e, ok := l.held[key]
	if !ok {
		l.mu.Unlock()
		panic("keylock: unlock of unlocked key " + key)
	}
	delete(l.held, key)
	l.mu.Unlock()
	close(e.ch)
}
