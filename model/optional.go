// Copyright 2024 Google Inc. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package model

import "errors"

// ErrDistinctValues is returned by SameValueOrNone when both sides hold a
// value and the values differ.
var ErrDistinctValues = errors.New("encountered two distinct values")

// Optional holds either nothing or a single comparable value.
type Optional[T comparable] struct {
	value   T
	present bool
}

func Some[T comparable](v T) Optional[T] {
	return Optional[T]{value: v, present: true}
}

func None[T comparable]() Optional[T] {
	return Optional[T]{}
}

func (o Optional[T]) Get() (T, bool) {
	return o.value, o.present
}

func (o Optional[T]) IsPresent() bool {
	return o.present
}

// OrElse returns the held value, or def when the Optional is empty.
func (o Optional[T]) OrElse(def T) T {
	if o.present {
		return o.value
	}
	return def
}

// SameValueOrNone folds next into acc. An empty side adopts the other one;
// two present values must be equal, otherwise ErrDistinctValues is returned
// and acc is left as it was.
func SameValueOrNone[T comparable](acc, next Optional[T]) (Optional[T], error) {
	switch {
	case !next.present:
		return acc, nil
	case !acc.present:
		return next, nil
	case acc.value == next.value:
		return acc, nil
	}
	return acc, ErrDistinctValues
}
