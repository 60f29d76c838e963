package testkit

import "math"

var nan = math.NaN()
