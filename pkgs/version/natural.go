package version

/* Natural ordering of version items.

   Copyright (C) 1995 Ian Jackson <iwj10@cus.cam.ac.uk>
   Copyright (C) 2001 Anthony Towns <aj@azure.humbug.org.au>
   Copyright (C) 2008-2025 Free Software Foundation, Inc.

   This file is free software: you can redistribute it and/or modify
   it under the terms of the GNU Lesser General Public License as
   published by the Free Software Foundation, either version 3 of the
   License, or (at your option) any later version.

   This file is distributed in the hope that it will be useful,
   but WITHOUT ANY WARRANTY; without even the implied warranty of
   MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
   GNU Lesser General Public License for more details.

   You should have received a copy of the GNU Lesser General Public License
   along with this program.  If not, see <https://www.gnu.org/licenses/>.  */

// compareItem orders two version items the way GNU sort -V does: digit
// runs compare by numeric value, everything else by character class.
// The result is normalized to -1, 0 or 1.
func compareItem(a, b string) int {
	switch c := verrevcmp(a, b); {
	case c < 0:
		return -1
	case c > 0:
		return 1
	}
	return 0
}

func verrevcmp(s1, s2 string) int {
	i, j := 0, 0
	for i < len(s1) || j < len(s2) {
		firstDiff := 0

		for (i < len(s1) && !isDigit(s1[i])) || (j < len(s2) && !isDigit(s2[j])) {
			var c1, c2 byte
			if i < len(s1) {
				c1 = s1[i]
			}
			if j < len(s2) {
				c2 = s2[j]
			}
			if o1, o2 := order(c1), order(c2); o1 != o2 {
				return o1 - o2
			}
			i++
			j++
		}

		for i < len(s1) && s1[i] == '0' {
			i++
		}
		for j < len(s2) && s2[j] == '0' {
			j++
		}

		for i < len(s1) && j < len(s2) && isDigit(s1[i]) && isDigit(s2[j]) {
			if firstDiff == 0 {
				firstDiff = int(s1[i]) - int(s2[j])
			}
			i++
			j++
		}

		if i < len(s1) && isDigit(s1[i]) {
			return 1
		}
		if j < len(s2) && isDigit(s2[j]) {
			return -1
		}
		if firstDiff != 0 {
			return firstDiff
		}
	}
	return 0
}

// order returns the sorting weight of c: digits and NUL weigh 0, letters
// their ASCII value, '~' sorts before everything and other bytes after
// all letters.
func order(c byte) int {
	switch {
	case isDigit(c), c == 0:
		return 0
	case isAlpha(c):
		return int(c)
	case c == '~':
		return -1
	}
	return int(c) + 256
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isAlpha(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
